package service

import (
	"github.com/pharmaguard-server/internal/domain"
)

// variantAnnotation is one entry of the known pharmacogenomic variant
// catalog: what a given rsID means for its gene.
type variantAnnotation struct {
	Gene       string
	StarAllele string
	Impact     domain.AlleleFunction
}

// pharmacoVariantCatalog maps rsID to its curated gene, star allele and
// functional impact. Process-wide immutable data, loaded once; no writers.
var pharmacoVariantCatalog = map[string]variantAnnotation{
	// CYP2D6
	"rs3892097":  {"CYP2D6", "*4", domain.NoFunction},
	"rs5030655":  {"CYP2D6", "*6", domain.NoFunction},
	"rs1065852":  {"CYP2D6", "*10", domain.DecreasedFunction},
	"rs16947":    {"CYP2D6", "*2", domain.NormalFunction},
	"rs1135840":  {"CYP2D6", "*2", domain.NormalFunction},
	"rs28371725": {"CYP2D6", "*41", domain.DecreasedFunction},
	"rs35742686": {"CYP2D6", "*3", domain.NoFunction},
	// CYP2C19
	"rs4244285":  {"CYP2C19", "*2", domain.NoFunction},
	"rs4986893":  {"CYP2C19", "*3", domain.NoFunction},
	"rs12248560": {"CYP2C19", "*17", domain.IncreasedFunction},
	"rs28399504": {"CYP2C19", "*4", domain.NoFunction},
	// CYP2C9
	"rs1799853":  {"CYP2C9", "*2", domain.DecreasedFunction},
	"rs1057910":  {"CYP2C9", "*3", domain.DecreasedFunction},
	"rs56165452": {"CYP2C9", "*5", domain.DecreasedFunction},
	"rs7900194":  {"CYP2C9", "*8", domain.DecreasedFunction},
	"rs28371686": {"CYP2C9", "*11", domain.DecreasedFunction},
	// SLCO1B1
	"rs4149056": {"SLCO1B1", "*5", domain.DecreasedFunction},
	"rs2306283": {"SLCO1B1", "*1B", domain.NormalFunction},
	"rs4149015": {"SLCO1B1", "*15", domain.DecreasedFunction},
	// TPMT
	"rs1800462": {"TPMT", "*2", domain.NoFunction},
	"rs1800460": {"TPMT", "*3B", domain.NoFunction},
	"rs1142345": {"TPMT", "*3C", domain.NoFunction},
	// DPYD
	"rs3918290":  {"DPYD", "*2A", domain.NoFunction},
	"rs55886062": {"DPYD", "*13", domain.NoFunction},
	"rs67376798": {"DPYD", "D949V", domain.DecreasedFunction},
	"rs75017182": {"DPYD", "c.1129-5923C>G", domain.DecreasedFunction},
}

// geneChromosomes maps each supported gene to its chromosome, used for
// validation and reporting.
var geneChromosomes = map[string]string{
	"CYP2D6":  "22",
	"CYP2C19": "10",
	"CYP2C9":  "10",
	"SLCO1B1": "12",
	"TPMT":    "6",
	"DPYD":    "1",
}

// alleleFunctions holds the CPIC allele function tables: per gene, the
// functional category of each named star allele. Alleles absent from a
// gene's table fall back to the variant's own impact annotation.
var alleleFunctions = map[string]map[string]domain.AlleleFunction{
	"CYP2D6": {
		"*1":  domain.NormalFunction,
		"*2":  domain.NormalFunction,
		"*3":  domain.NoFunction,
		"*4":  domain.NoFunction,
		"*5":  domain.NoFunction,
		"*6":  domain.NoFunction,
		"*9":  domain.DecreasedFunction,
		"*10": domain.DecreasedFunction,
		"*17": domain.DecreasedFunction,
		"*29": domain.DecreasedFunction,
		"*41": domain.DecreasedFunction,
	},
	"CYP2C19": {
		"*1":  domain.NormalFunction,
		"*2":  domain.NoFunction,
		"*3":  domain.NoFunction,
		"*4":  domain.NoFunction,
		"*17": domain.IncreasedFunction,
	},
	"CYP2C9": {
		"*1":  domain.NormalFunction,
		"*2":  domain.DecreasedFunction,
		"*3":  domain.DecreasedFunction,
		"*5":  domain.DecreasedFunction,
		"*8":  domain.DecreasedFunction,
		"*11": domain.DecreasedFunction,
	},
	"SLCO1B1": {
		"*1":  domain.NormalFunction,
		"*1A": domain.NormalFunction,
		"*1B": domain.NormalFunction,
		"*5":  domain.DecreasedFunction,
		"*15": domain.DecreasedFunction,
		"*17": domain.DecreasedFunction,
	},
	"TPMT": {
		"*1":  domain.NormalFunction,
		"*2":  domain.NoFunction,
		"*3A": domain.NoFunction,
		"*3B": domain.NoFunction,
		"*3C": domain.NoFunction,
	},
	"DPYD": {
		"*1":             domain.NormalFunction,
		"*2A":            domain.NoFunction,
		"*13":            domain.NoFunction,
		"D949V":          domain.DecreasedFunction,
		"c.1129-5923C>G": domain.DecreasedFunction,
	},
}

// increasedFunctionGenes are the genes whose allele set includes a
// recognized increased-function allele; their activity scores map onto the
// extended RM/URM phenotype ladder.
var increasedFunctionGenes = map[string]bool{
	"CYP2D6":  true,
	"CYP2C19": true,
}

// LookupVariant returns the catalog annotation for an rsID, if known.
func LookupVariant(rsid string) (variantAnnotation, bool) {
	ann, ok := pharmacoVariantCatalog[rsid]
	return ann, ok
}

// GeneChromosome returns the chromosome a supported gene resides on.
func GeneChromosome(gene string) (string, bool) {
	chrom, ok := geneChromosomes[gene]
	return chrom, ok
}

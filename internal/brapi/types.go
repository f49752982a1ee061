package brapi

// NodeType is a node label the adapter can emit
type NodeType string

const (
	NodeTypeTrial     NodeType = "trial"
	NodeTypeStudy     NodeType = "study"
	NodeTypeGermplasm NodeType = "germplasm"
)

// Field selects a node property. Trial and study both carry "trialName".
type Field string

// Trial fields
const (
	TrialDbID    Field = "trialDbId"
	TrialName    Field = "trialName"
	TrialStudies Field = "studies"
)

// Study fields
const (
	StudyDbID          Field = "studyDbId"
	StudyName          Field = "studyName"
	StudyTrialName     Field = "trialName"
	StudyGermplasmDbID Field = "germplasmDbIds"
)

// Germplasm fields
const (
	GermplasmDbID Field = "germplasmDbId"
	GermplasmName Field = "germplasmName"
)

// EdgeType is a relationship label the adapter can emit
type EdgeType string

const (
	EdgeTrialStudies     EdgeType = "trial_studies"
	EdgeStudiesGermplasm EdgeType = "studies_germplasm"
)

// EdgeField selects an edge property. No edge type carries properties.
type EdgeField string

// AllNodeTypes returns every node type
func AllNodeTypes() []NodeType {
	return []NodeType{NodeTypeTrial, NodeTypeStudy, NodeTypeGermplasm}
}

// AllNodeFields returns every field selector: study, trial, then germplasm fields
func AllNodeFields() []Field {
	return []Field{
		StudyDbID, StudyName, StudyTrialName, StudyGermplasmDbID,
		TrialDbID, TrialName, TrialStudies,
		GermplasmDbID, GermplasmName,
	}
}

// AllEdgeTypes returns every edge type
func AllEdgeTypes() []EdgeType {
	return []EdgeType{EdgeTrialStudies, EdgeStudiesGermplasm}
}

// AllEdgeFields returns every edge field selector (none)
func AllEdgeFields() []EdgeField {
	return []EdgeField{}
}

// Property projections. Every key must be present in the source record.
var (
	trialProperties = []string{
		"trialDbId",
		"trialName",
		"documentationURL",
	}

	studyProperties = []string{
		"studyDbId",
		"studyName",
		"trialName",
		"germplasmDbIds",
		"startDate",
		"endDate",
		"documentationURL",
		"studyType",
		"locationName",
		"locationDbId",
		"observationVariableDbIds",
		"seasons",
	}

	germplasmProperties = []string{
		"germplasmDbId",
		"germplasmName",
		"germplasmPUI",
		"accessionNumber",
		"instituteCode",
		"instituteName",
		"biologicalStatusOfAccessionCode",
		"biologicalStatusOfAccessionDescription",
		"countryOfOriginCode",
		"pedigree",
		"genusSpecies",
		"genus",
		"species",
		"subtaxa",
		"presenceStatus",
		"commonCropName",
		"taxonCommonNames",
	}
)

// PropertyKeys returns the fixed property projection of a node type
func PropertyKeys(t NodeType) []string {
	var keys []string
	switch t {
	case NodeTypeTrial:
		keys = trialProperties
	case NodeTypeStudy:
		keys = studyProperties
	case NodeTypeGermplasm:
		keys = germplasmProperties
	}
	return append([]string(nil), keys...)
}

// EdgeEndpoints returns the node types each edge type connects
func EdgeEndpoints() map[EdgeType][2]NodeType {
	return map[EdgeType][2]NodeType{
		EdgeTrialStudies:     {NodeTypeTrial, NodeTypeStudy},
		EdgeStudiesGermplasm: {NodeTypeStudy, NodeTypeGermplasm},
	}
}

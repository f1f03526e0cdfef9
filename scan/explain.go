package scan

import (
	"go.mongodb.org/mongo-driver/bson"
)

// explainPipelineLimit caps the pipeline text shown in plan output.
const explainPipelineLimit = 400

// ExplainInfo is what a scan reports in plan output.
type ExplainInfo struct {
	Database   string
	Collection string
	// ScanMethod is "find" or "aggregate".
	ScanMethod string
	// Pipeline is the stage JSON, truncated at 400 characters. Set only
	// for aggregate scans.
	Pipeline string
	// Filter and Expr describe a find scan's pushed predicates.
	Filter string
	Expr   string
}

// Explain reports how this worker scans the collection.
func (s *LocalState) Explain() ExplainInfo {
	info := ExplainInfo{
		Database:   s.bind.Database,
		Collection: s.bind.Collection,
		ScanMethod: "find",
	}
	if s.bind.PipelineJSON != "" {
		info.ScanMethod = "aggregate"
		info.Pipeline = truncate(s.bind.PipelineJSON, explainPipelineLimit)
		return info
	}
	if len(s.filterDoc) > 0 {
		info.Filter = extJSON(s.filterDoc)
	}
	if len(s.bind.ComplexFilterExpr) > 0 {
		info.Expr = extJSON(s.bind.ComplexFilterExpr)
	}
	return info
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func extJSON(doc bson.D) string {
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return ""
	}
	return string(data)
}

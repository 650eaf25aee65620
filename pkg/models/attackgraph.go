package models

// AttackStep is one node in a simulated attack chain. Step numbers increase
// monotonically across the whole path regardless of stage.
type AttackStep struct {
	Step            int      `json:"step" bson:"step"`
	Stage           string   `json:"stage" bson:"stage"`
	Subdomain       string   `json:"subdomain" bson:"subdomain"`
	IP              string   `json:"ip" bson:"ip"`
	Technique       string   `json:"technique" bson:"technique"`
	MitreID         string   `json:"mitre_id" bson:"mitre_id"`
	Evidence        []string `json:"evidence" bson:"evidence"`
	ConfidenceScore float64  `json:"confidence_score" bson:"confidence_score"`
	ImpactDetail    string   `json:"impact_detail,omitempty" bson:"impact_detail,omitempty"`
}

// AttackGraph is the full simulation output for one scan.
type AttackGraph struct {
	EntryPoint      *string      `json:"entry_point" bson:"entry_point"`
	AttackPath      []AttackStep `json:"attack_path" bson:"attack_path"`
	ImpactSummary   string       `json:"impact_summary" bson:"impact_summary"`
	OverallRisk     string       `json:"overall_risk" bson:"overall_risk"`
	MitigationNotes []string     `json:"mitigation_notes,omitempty" bson:"mitigation_notes,omitempty"`
}

// Clone returns a deep copy so enhancement merging never mutates the
// deterministic base graph.
func (g AttackGraph) Clone() AttackGraph {
	out := g
	if g.EntryPoint != nil {
		ep := *g.EntryPoint
		out.EntryPoint = &ep
	}
	if g.AttackPath != nil {
		out.AttackPath = make([]AttackStep, len(g.AttackPath))
		copy(out.AttackPath, g.AttackPath)
		for i := range out.AttackPath {
			if g.AttackPath[i].Evidence != nil {
				ev := make([]string, len(g.AttackPath[i].Evidence))
				copy(ev, g.AttackPath[i].Evidence)
				out.AttackPath[i].Evidence = ev
			}
		}
	}
	if g.MitigationNotes != nil {
		notes := make([]string, len(g.MitigationNotes))
		copy(notes, g.MitigationNotes)
		out.MitigationNotes = notes
	}
	return out
}

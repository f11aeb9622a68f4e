package wizard

import "consultation-desk/models"

const ActionCopyApplicant = "copy-applicant"

var (
	stepLabels  = []string{"基本情報", "相談詳細", "対応記録"}
	panelTitles = map[int]string{1: "基本情報", 2: "相談詳細", 3: "対応記録・予定"}
)

type FieldView struct {
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Kind        InputKind `json:"kind"`
	Required    bool      `json:"required"`
	Options     []string  `json:"options,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
	Value       string    `json:"value"`
	Error       string    `json:"error,omitempty"`
}

type Panel struct {
	Step    int         `json:"step"`
	Title   string      `json:"title"`
	Fields  []FieldView `json:"fields"`
	Actions []string    `json:"actions,omitempty"`
}

// BuildPanel renders the fields of one step from the record and the current
// error map. It has no side effects.
func BuildPanel(step int, rec *models.Consultation, errs map[string]string) Panel {
	p := Panel{Step: step, Title: panelTitles[step], Fields: []FieldView{}}
	for i := range fields {
		f := &fields[i]
		if f.Step != step {
			continue
		}
		p.Fields = append(p.Fields, FieldView{
			Name:        f.Name,
			Label:       f.Label,
			Kind:        f.Kind,
			Required:    f.Required,
			Options:     f.Options,
			Placeholder: f.Placeholder,
			Value:       f.get(rec),
			Error:       errs[f.Name],
		})
	}
	if step == 2 {
		p.Actions = []string{ActionCopyApplicant}
	}
	return p
}

// CopyApplicant fills the consultant fields from the applicant's own basic
// info. It returns the names of the fields it wrote.
func CopyApplicant(rec *models.Consultation) []string {
	rec.ConsultantName = rec.Name
	if rec.Phone != nil {
		rec.ConsultantPhone = models.StringPtr(*rec.Phone)
	} else {
		rec.ConsultantPhone = nil
	}
	rec.Relationship = models.StringPtr(RelationshipSelf)
	return []string{"consultantName", "consultantPhone", "relationship"}
}

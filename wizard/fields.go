package wizard

import (
	"errors"
	"fmt"
	"time"

	"consultation-desk/models"
)

var (
	ErrUnknownField = errors.New("unknown or read-only field")
	ErrInvalidValue = errors.New("invalid field value")
)

type InputKind string

const (
	KindDate     InputKind = "date"
	KindDateTime InputKind = "datetime-local"
	KindText     InputKind = "text"
	KindTel      InputKind = "tel"
	KindTextarea InputKind = "textarea"
	KindRadio    InputKind = "radio"
	KindSelect   InputKind = "select"
)

// RelationshipSelf is what "copy applicant info" writes into relationship.
const RelationshipSelf = "本人"

// Field describes one user-editable record field. Required marks the field
// in the form; which fields block a step boundary is decided by the step
// validators.
type Field struct {
	Name        string
	Label       string
	Step        int
	Kind        InputKind
	Required    bool
	Options     []string
	Placeholder string

	get func(c *models.Consultation) string
	set func(c *models.Consultation, v string) error
}

func requiredText(p func(c *models.Consultation) *string) (func(*models.Consultation) string, func(*models.Consultation, string) error) {
	return func(c *models.Consultation) string { return *p(c) },
		func(c *models.Consultation, v string) error { *p(c) = v; return nil }
}

func optionalText(p func(c *models.Consultation) **string) (func(*models.Consultation) string, func(*models.Consultation, string) error) {
	return func(c *models.Consultation) string { return models.Deref(*p(c)) },
		func(c *models.Consultation, v string) error {
			if v == "" {
				*p(c) = nil
				return nil
			}
			*p(c) = &v
			return nil
		}
}

func withLayouts(set func(*models.Consultation, string) error, layouts ...string) func(*models.Consultation, string) error {
	return func(c *models.Consultation, v string) error {
		if v == "" {
			return set(c, v)
		}
		for _, layout := range layouts {
			if _, err := time.Parse(layout, v); err == nil {
				return set(c, v)
			}
		}
		return fmt.Errorf("%w: %q is not a valid date", ErrInvalidValue, v)
	}
}

func oneOf[T ~string](options []T, v string) (T, error) {
	for _, o := range options {
		if string(o) == v {
			return o, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidValue, v)
}

func stringsOf[T ~string](options []T) []string {
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = string(o)
	}
	return out
}

func dateField(name, label string, step int, required bool, p func(c *models.Consultation) *string) Field {
	get, set := requiredText(p)
	return Field{Name: name, Label: label, Step: step, Kind: KindDate, Required: required,
		get: get, set: withLayouts(set, models.DateLayout)}
}

func textField(name, label string, step int, kind InputKind, placeholder string, p func(c *models.Consultation) *string) Field {
	get, set := requiredText(p)
	return Field{Name: name, Label: label, Step: step, Kind: kind, Required: true, Placeholder: placeholder, get: get, set: set}
}

func optField(name, label string, step int, kind InputKind, placeholder string, p func(c *models.Consultation) **string) Field {
	get, set := optionalText(p)
	return Field{Name: name, Label: label, Step: step, Kind: kind, Placeholder: placeholder, get: get, set: set}
}

var fields = []Field{
	// Step 1
	dateField("receptionDate", "受付日", 1, true, func(c *models.Consultation) *string { return &c.ReceptionDate }),
	optField("phone", "本人電話番号", 1, KindTel, "090-1234-5678", func(c *models.Consultation) **string { return &c.Phone }),
	textField("name", "名前", 1, KindText, "山田 太郎", func(c *models.Consultation) *string { return &c.Name }),
	textField("furigana", "フリガナ", 1, KindText, "ヤマダ タロウ", func(c *models.Consultation) *string { return &c.Furigana }),
	{
		Name: "gender", Label: "性別", Step: 1, Kind: KindRadio, Required: true,
		Options: stringsOf(models.Genders),
		get:     func(c *models.Consultation) string { return string(c.Gender) },
		set: func(c *models.Consultation, v string) error {
			g, err := oneOf(models.Genders, v)
			if err != nil {
				return err
			}
			c.Gender = g
			return nil
		},
	},
	dateField("birthDate", "生年月日 (和暦変換用)", 1, true, func(c *models.Consultation) *string { return &c.BirthDate }),
	optField("address", "住所", 1, KindText, "", func(c *models.Consultation) **string { return &c.Address }),
	optField("insuredNumber", "被保険者番号", 1, KindText, "", func(c *models.Consultation) **string { return &c.InsuredNumber }),
	optField("insurer", "保険者", 1, KindText, "", func(c *models.Consultation) **string { return &c.Insurer }),

	// Step 2
	textField("consultantName", "相談者名", 2, KindText, "", func(c *models.Consultation) *string { return &c.ConsultantName }),
	{
		Name: "method", Label: "相談手段", Step: 2, Kind: KindSelect, Required: true,
		Options: stringsOf(models.ConsultationMethods),
		get:     func(c *models.Consultation) string { return string(c.Method) },
		set: func(c *models.Consultation, v string) error {
			m, err := oneOf(models.ConsultationMethods, v)
			if err != nil {
				return err
			}
			c.Method = m
			return nil
		},
	},
	optField("consultantPhone", "相談者電話番号", 2, KindTel, "", func(c *models.Consultation) **string { return &c.ConsultantPhone }),
	optField("relationship", "続柄・関係", 2, KindText, "", func(c *models.Consultation) **string { return &c.Relationship }),
	optField("background", "相談経緯", 2, KindTextarea, "", func(c *models.Consultation) **string { return &c.Background }),
	textField("content", "相談内容", 2, KindTextarea, "具体的な相談内容を記入してください", func(c *models.Consultation) *string { return &c.Content }),
	optField("currentUsage", "利用状況", 2, KindText, "", func(c *models.Consultation) **string { return &c.CurrentUsage }),
	{
		Name: "certificationStatus", Label: "認定状況", Step: 2, Kind: KindSelect,
		Options: stringsOf(models.CertificationStatuses),
		get: func(c *models.Consultation) string {
			if c.CertificationStatus == nil {
				return string(models.CertificationNotApplied)
			}
			return string(*c.CertificationStatus)
		},
		set: func(c *models.Consultation, v string) error {
			if v == "" {
				c.CertificationStatus = nil
				return nil
			}
			s, err := oneOf(models.CertificationStatuses, v)
			if err != nil {
				return err
			}
			c.CertificationStatus = &s
			return nil
		},
	},
	optField("supportProvided", "支援内容", 2, KindTextarea, "", func(c *models.Consultation) **string { return &c.SupportProvided }),
	optField("difficultyReason", "困難な理由", 2, KindTextarea, "", func(c *models.Consultation) **string { return &c.DifficultyReason }),

	// Step 3
	textField("response", "対応", 3, KindTextarea, "", func(c *models.Consultation) *string { return &c.Response }),
	func() Field {
		f := optField("firstVisitDate", "初回訪問日時", 3, KindDateTime, "", func(c *models.Consultation) **string { return &c.FirstVisitDate })
		f.set = withLayouts(f.set, models.DateTimeLayout, "2006-01-02T15:04:05")
		return f
	}(),
	optField("visitLocation", "訪問場所", 3, KindText, "例: 利用者宅", func(c *models.Consultation) **string { return &c.VisitLocation }),
	optField("specialNotes", "特記事項", 3, KindTextarea, "", func(c *models.Consultation) **string { return &c.SpecialNotes }),
	textField("staffName", "相談受付者", 3, KindText, "", func(c *models.Consultation) *string { return &c.StaffName }),
	optField("careManager", "担当ケアマネ", 3, KindText, "", func(c *models.Consultation) **string { return &c.CareManager }),
}

var fieldsByName = func() map[string]*Field {
	m := make(map[string]*Field, len(fields))
	for i := range fields {
		m[fields[i].Name] = &fields[i]
	}
	return m
}()

// Fields lists every editable field in form order.
func Fields() []Field {
	return append([]Field(nil), fields...)
}

func lookupField(name string) (*Field, error) {
	f, ok := fieldsByName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	return f, nil
}

// SetField writes one field of rec. It never validates required-ness.
func SetField(rec *models.Consultation, name, value string) error {
	f, err := lookupField(name)
	if err != nil {
		return err
	}
	return f.set(rec, value)
}

// FieldValue reads a field as its form value.
func FieldValue(rec *models.Consultation, name string) (string, error) {
	f, err := lookupField(name)
	if err != nil {
		return "", err
	}
	return f.get(rec), nil
}

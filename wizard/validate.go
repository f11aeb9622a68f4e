package wizard

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"consultation-desk/models"

	"github.com/go-playground/validator/v10"
)

const MessageRequired = "必須です"

// Each step is validated through a projection holding only the fields that
// gate its boundary.
type basicInfoStep struct {
	ReceptionDate string `json:"receptionDate" validate:"required"`
	Name          string `json:"name" validate:"required"`
	Furigana      string `json:"furigana" validate:"required"`
	BirthDate     string `json:"birthDate" validate:"required"`
}

type detailsStep struct {
	ConsultantName string `json:"consultantName" validate:"required"`
	Content        string `json:"content" validate:"required"`
}

type actionStep struct {
	Response  string `json:"response" validate:"required"`
	StaffName string `json:"staffName" validate:"required"`
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

func projection(step int, c *models.Consultation) interface{} {
	switch step {
	case 1:
		return basicInfoStep{ReceptionDate: c.ReceptionDate, Name: c.Name, Furigana: c.Furigana, BirthDate: c.BirthDate}
	case 2:
		return detailsStep{ConsultantName: c.ConsultantName, Content: c.Content}
	case 3:
		return actionStep{Response: c.Response, StaffName: c.StaffName}
	}
	return nil
}

// ValidateStep returns one message per missing required field of step, or
// nil when the step may be left.
func ValidateStep(step int, c *models.Consultation) map[string]string {
	p := projection(step, c)
	if p == nil {
		return nil
	}

	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = MessageRequired
	}
	return out
}

// RequiredFields lists the fields gating a step, in declaration order.
func RequiredFields(step int) []string {
	p := projection(step, &models.Consultation{})
	if p == nil {
		return nil
	}
	t := reflect.TypeOf(p)
	out := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		out = append(out, strings.SplitN(t.Field(i).Tag.Get("json"), ",", 2)[0])
	}
	return out
}

type ValidationError struct {
	Step   int
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return fmt.Sprintf("step %d: missing required fields: %s", e.Step, strings.Join(names, ", "))
}

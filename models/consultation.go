package models

import (
	"time"
)

type Gender string

const (
	GenderMale   Gender = "男"
	GenderFemale Gender = "女"
	GenderOther  Gender = "その他"
)

var Genders = []Gender{GenderMale, GenderFemale, GenderOther}

type ConsultationMethod string

const (
	MethodPhone       ConsultationMethod = "電話"
	MethodVisitOffice ConsultationMethod = "来所"
	MethodVisitHome   ConsultationMethod = "訪問"
	MethodOther       ConsultationMethod = "その他"
)

var ConsultationMethods = []ConsultationMethod{MethodPhone, MethodVisitOffice, MethodVisitHome, MethodOther}

type CertificationStatus string

const (
	CertificationApplying      CertificationStatus = "申請中"
	CertificationSupportNeeded CertificationStatus = "要支援"
	CertificationCareNeeded    CertificationStatus = "要介護"
	CertificationIndependent   CertificationStatus = "自立"
	CertificationNotApplied    CertificationStatus = "未申請"
)

var CertificationStatuses = []CertificationStatus{
	CertificationApplying,
	CertificationSupportNeeded,
	CertificationCareNeeded,
	CertificationIndependent,
	CertificationNotApplied,
}

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02T15:04"
)

// Consultation is one intake record. Pointer fields are optional: nil means
// the value was never entered.
type Consultation struct {
	// Step 1: basic info
	ID            string  `json:"id"`
	ReceptionDate string  `json:"receptionDate"`
	InsuredNumber *string `json:"insuredNumber,omitempty"`
	Insurer       *string `json:"insurer,omitempty"`
	Name          string  `json:"name"`
	Furigana      string  `json:"furigana"`
	Gender        Gender  `json:"gender"`
	BirthDate     string  `json:"birthDate"`
	Address       *string `json:"address,omitempty"`
	Phone         *string `json:"phone,omitempty"`

	// Step 2: details
	ConsultantName      string               `json:"consultantName"`
	Method              ConsultationMethod   `json:"method"`
	ConsultantPhone     *string              `json:"consultantPhone,omitempty"`
	Relationship        *string              `json:"relationship,omitempty"`
	Background          *string              `json:"background,omitempty"`
	Content             string               `json:"content"`
	CurrentUsage        *string              `json:"currentUsage,omitempty"`
	CertificationStatus *CertificationStatus `json:"certificationStatus,omitempty"`
	SupportProvided     *string              `json:"supportProvided,omitempty"`
	DifficultyReason    *string              `json:"difficultyReason,omitempty"`

	// Step 3: action and result
	Response       string  `json:"response"`
	FirstVisitDate *string `json:"firstVisitDate,omitempty"`
	VisitLocation  *string `json:"visitLocation,omitempty"`
	SpecialNotes   *string `json:"specialNotes,omitempty"`
	StaffName      string  `json:"staffName"`
	CareManager    *string `json:"careManager,omitempty"`

	// Managed by the store after a successful save.
	PdfCreatedAt    *string `json:"pdfCreatedAt,omitempty"`
	PdfFileID       *string `json:"pdfFileId,omitempty"`
	CalendarEventID *string `json:"calendarEventId,omitempty"`
}

func NewConsultation(now time.Time) *Consultation {
	return &Consultation{
		ReceptionDate: now.Format(DateLayout),
		Gender:        Genders[0],
		Method:        ConsultationMethods[0],
	}
}

func (c *Consultation) Clone() *Consultation {
	if c == nil {
		return nil
	}
	out := *c
	for _, p := range []**string{
		&out.InsuredNumber, &out.Insurer, &out.Address, &out.Phone,
		&out.ConsultantPhone, &out.Relationship, &out.Background, &out.CurrentUsage,
		&out.SupportProvided, &out.DifficultyReason,
		&out.FirstVisitDate, &out.VisitLocation, &out.SpecialNotes, &out.CareManager,
		&out.PdfCreatedAt, &out.PdfFileID, &out.CalendarEventID,
	} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	if out.CertificationStatus != nil {
		v := *out.CertificationStatus
		out.CertificationStatus = &v
	}
	return &out
}

// ReceivedIn reports whether the reception date falls in the given calendar
// month. Records with an unparsable date never match.
func (c *Consultation) ReceivedIn(year, month int) bool {
	d, err := ParseDate(c.ReceptionDate)
	if err != nil {
		return false
	}
	return d.Year() == year && int(d.Month()) == month
}

func (c *Consultation) HasFirstVisit() bool {
	return c.FirstVisitDate != nil && *c.FirstVisitDate != ""
}

func (c *Consultation) HasCalendarEvent() bool {
	return c.CalendarEventID != nil && *c.CalendarEventID != ""
}

// ParseDate accepts a bare date or anything starting with one (an ISO
// timestamp, a datetime-local value).
func ParseDate(s string) (time.Time, error) {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	return time.Parse(DateLayout, s)
}

func StringPtr(s string) *string {
	return &s
}

func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

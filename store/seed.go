package store

import (
	"fmt"
	"time"

	"consultation-desk/models"
)

func sampleConsultations(now time.Time) []models.Consultation {
	out := make([]models.Consultation, 0, 5)
	for i := 0; i < 5; i++ {
		notApplied := models.CertificationNotApplied
		out = append(out, models.Consultation{
			ID:                  fmt.Sprintf("mock-%d", i),
			ReceptionDate:       now.Format(models.DateLayout),
			Name:                fmt.Sprintf("山田 太郎 %d", i+1),
			Furigana:            fmt.Sprintf("ヤマダ タロウ %d", i+1),
			Gender:              models.GenderMale,
			BirthDate:           "1950-01-01",
			Address:             models.StringPtr("東京都新宿区..."),
			Phone:               models.StringPtr("090-1234-5678"),
			ConsultantName:      fmt.Sprintf("山田 花子 %d", i+1),
			Method:              models.MethodPhone,
			Relationship:        models.StringPtr("妻"),
			Content:             "最近物忘れが激しくなってきたため相談したい。",
			Response:            "まずは地域包括支援センターへの来所をご案内しました。",
			StaffName:           "鈴木 一郎",
			CertificationStatus: &notApplied,
		})
	}
	return out
}

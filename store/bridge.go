package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"consultation-desk/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	procGetConsultations = "getConsultations"
	procSaveConsultation = "saveConsultation"
)

// BridgeStore calls the production backend's two procedures through its
// script execution endpoint. It never retries and sets no timeout of its own.
type BridgeStore struct {
	client   *resty.Client
	endpoint string
	logger   *zap.Logger
}

type bridgeRequest struct {
	Function   string        `json:"function"`
	Parameters []interface{} `json:"parameters"`
}

type bridgeResponse struct {
	Done     bool `json:"done"`
	Response *struct {
		Result json.RawMessage `json:"result"`
	} `json:"response"`
	Error *bridgeError `json:"error"`
}

type bridgeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details []struct {
		ErrorMessage string `json:"errorMessage"`
		ErrorType    string `json:"errorType"`
	} `json:"details"`
}

func (e *bridgeError) String() string {
	for _, d := range e.Details {
		if d.ErrorMessage != "" {
			return d.ErrorMessage
		}
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("error code %d", e.Code)
}

type bridgeSaveReply struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	PdfURL  string `json:"pdfUrl"`
	Message string `json:"message"`
}

func NewBridgeStore(endpoint, token string, logger *zap.Logger) *BridgeStore {
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}

	return &BridgeStore{
		client:   client,
		endpoint: endpoint,
		logger:   logger,
	}
}

func (b *BridgeStore) Fetch(ctx context.Context, year, month int) ([]models.Consultation, error) {
	var records []models.Consultation
	if err := b.call(ctx, procGetConsultations, []interface{}{year, month}, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.Consultation{}
	}
	return records, nil
}

func (b *BridgeStore) Save(ctx context.Context, rec *models.Consultation) (SaveResult, error) {
	if rec == nil {
		return SaveResult{}, errors.New("nil consultation")
	}

	var reply bridgeSaveReply
	if err := b.call(ctx, procSaveConsultation, []interface{}{rec}, &reply); err != nil {
		return SaveResult{}, err
	}
	if !reply.Success {
		msg := reply.Message
		if msg == "" {
			msg = "no message"
		}
		return SaveResult{}, fmt.Errorf("%w: %s", ErrSaveRejected, msg)
	}

	saved := rec.Clone()
	if reply.ID != "" {
		saved.ID = reply.ID
	}
	if saved.ID == "" {
		return SaveResult{}, fmt.Errorf("%w: backend returned no id", ErrSaveRejected)
	}

	return SaveResult{ID: saved.ID, DocumentURL: reply.PdfURL, Record: saved}, nil
}

func (b *BridgeStore) call(ctx context.Context, function string, params []interface{}, out interface{}) error {
	b.logger.Debug("Calling bridge procedure", zap.String("function", function))

	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(bridgeRequest{Function: function, Parameters: params}).
		Post(b.endpoint)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransport, function, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s: HTTP %s", ErrTransport, function, strings.TrimSpace(resp.Status()))
	}

	var envelope bridgeResponse
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("%w: %s: malformed reply: %v", ErrTransport, function, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%w: %s: %s", ErrTransport, function, envelope.Error.String())
	}
	if envelope.Response == nil || len(envelope.Response.Result) == 0 {
		return fmt.Errorf("%w: %s: empty reply", ErrTransport, function)
	}

	if err := json.Unmarshal(envelope.Response.Result, out); err != nil {
		return fmt.Errorf("%w: %s: unexpected result: %v", ErrTransport, function, err)
	}
	return nil
}

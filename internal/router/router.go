// Package router turns a parsed intent into a Tuition API call and a routed
// response the chat front-end can render.
package router

import (
	"context"
	"fmt"
	"math"
	"net/http"

	"github.com/tuitionchat/tuition-chat-go/internal/intent"
	"github.com/tuitionchat/tuition-chat-go/internal/logger"
	"github.com/tuitionchat/tuition-chat-go/internal/tuition"
)

// Stage names the outcome of routing one message.
type Stage string

const (
	StageClarify    Stage = "clarify"
	StageAPI        Stage = "api"
	StageConfirmPay Stage = "confirm_pay"
	StageNotFound   Stage = "not_found"
	StageError      Stage = "error"
	StageUnknown    Stage = "unknown"
	StageNoBalance  Stage = "no_balance"
)

// UI types understood by the front-end.
const (
	UIAskStudentNo   = "ask_student_no"
	UIError          = "error"
	UITuitionCard    = "tuition_card"
	UIUnpaidList     = "unpaid_list"
	UIPayCard        = "pay_card"
	UIInfo           = "info"
	UIPaymentSuccess = "payment_success"
)

// User-facing messages.
const (
	MsgMissingInfo     = "Eksik bilgi var."
	MsgPayNeedsID      = "Ödeme için öğrenci numarası gerekli."
	MsgPaymentDataBad  = "Term veya Amount bilgisi eksik/okunamadı (API response alan adlarını kontrol et)."
	MsgUnknown         = "Bu mesaj için uygun bir işlem bulamadım. /I couldn’t find a suitable action for this message."
	msgUnknownAPIError = "Bilinmeyen hata"
)

// UI describes the widget the front-end should show.
type UI struct {
	Type           string                  `json:"type"`
	Title          string                  `json:"title"`
	Placeholder    string                  `json:"placeholder,omitempty"`
	PaymentRequest *tuition.PaymentRequest `json:"paymentRequest,omitempty"`
	Success        *bool                   `json:"success,omitempty"`
}

// Response is the routed outcome of one message.
type Response struct {
	Stage   Stage           `json:"stage"`
	Intent  intent.Intent   `json:"intent"`
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	API     *tuition.Result `json:"api,omitempty"`
	UI      *UI             `json:"ui,omitempty"`
}

// API is the subset of the Tuition API the router calls.
type API interface {
	Tuition(ctx context.Context, studentNo string) (tuition.Result, error)
	Unpaid(ctx context.Context, token string) (tuition.Result, error)
	Pay(ctx context.Context, token string, req tuition.PaymentRequest) (tuition.Result, error)
}

// TokenSource yields an admin bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Invalidate drops a token the API has rejected.
	Invalidate()
}

// Router dispatches parsed intents. It holds no per-session state.
type Router struct {
	api    API
	tokens TokenSource
	logger *logger.Logger
}

// New creates a Router. A nil logger discards output.
func New(api API, tokens TokenSource, log *logger.Logger) *Router {
	if log == nil {
		log = logger.Nop()
	}
	return &Router{api: api, tokens: tokens, logger: log.WithModule("router")}
}

// Route dispatches p. The error is non-nil only for transport or admin
// login failures; every other outcome is a Response.
func (r *Router) Route(ctx context.Context, p intent.ParsedIntent) (Response, error) {
	if len(p.MissingFields) > 0 {
		msg := p.ClarifyingQuestion
		if msg == "" {
			msg = MsgMissingInfo
		}
		return clarify(p.Intent, msg), nil
	}

	switch p.Intent {
	case intent.QueryTuition:
		return r.query(ctx, p.StudentNo)
	case intent.UnpaidTuition:
		return r.unpaid(ctx)
	case intent.PayTuition:
		return r.pay(ctx, p.StudentNo)
	default:
		return Response{
			Stage:   StageUnknown,
			Intent:  intent.Unknown,
			Message: MsgUnknown,
			UI:      &UI{Type: UIError, Title: "Unknown"},
		}, nil
	}
}

func (r *Router) query(ctx context.Context, studentNo string) (Response, error) {
	res, err := r.api.Tuition(ctx, studentNo)
	if err != nil {
		return Response{}, err
	}
	r.logger.DebugContext(ctx, "tuition lookup",
		"student_no", studentNo,
		"ok", res.OK,
		"status", res.Status)

	if IsStudentNotFound(res, studentNo) {
		return Response{
			Stage:   StageNotFound,
			Intent:  intent.QueryTuition,
			API:     &res,
			Message: fmt.Sprintf("Öğrenci bulunamadı./ Student not found (Student No: %s).", studentNo),
			UI:      &UI{Type: UIError, Title: "Not Found"},
		}, nil
	}
	if !res.OK {
		return apiError(intent.QueryTuition, res), nil
	}
	return Response{
		Stage:   StageAPI,
		Intent:  intent.QueryTuition,
		Success: true,
		API:     &res,
		UI:      &UI{Type: UITuitionCard, Title: "Tuition"},
	}, nil
}

func (r *Router) unpaid(ctx context.Context) (Response, error) {
	token, err := r.tokens.Token(ctx)
	if err != nil {
		return Response{}, err
	}
	res, err := r.api.Unpaid(ctx, token)
	if err != nil {
		return Response{}, err
	}
	r.checkRejected(ctx, res)
	if !res.OK {
		return apiError(intent.UnpaidTuition, res), nil
	}
	return Response{
		Stage:   StageAPI,
		Intent:  intent.UnpaidTuition,
		Success: true,
		API:     &res,
		UI:      &UI{Type: UIUnpaidList, Title: "Unpaid Tuitions"},
	}, nil
}

func (r *Router) pay(ctx context.Context, studentNo string) (Response, error) {
	if studentNo == "" {
		return clarify(intent.PayTuition, MsgPayNeedsID), nil
	}

	res, err := r.api.Tuition(ctx, studentNo)
	if err != nil {
		return Response{}, err
	}

	// A missing student never reaches confirm_pay.
	if IsStudentNotFound(res, studentNo) {
		return Response{
			Stage:   StageNotFound,
			Intent:  intent.PayTuition,
			API:     &res,
			Message: fmt.Sprintf("Öğrenci bulunamadı (Student No: %s). Ödeme yapılamaz.", studentNo),
			UI:      &UI{Type: UIError, Title: "Not Found"},
		}, nil
	}
	if !res.OK {
		return apiError(intent.PayTuition, res), nil
	}

	data, _ := res.Data.(map[string]any)
	term := firstPresent(data, "term", "Term")
	amount := toNumber(firstPresent(data, "balance", "Balance", "amount", "Amount", "tuitionTotal", "TuitionTotal"))

	if !truthy(term) || math.IsNaN(amount) {
		return Response{
			Stage:   StageError,
			Intent:  intent.PayTuition,
			API:     &res,
			Message: MsgPaymentDataBad,
			UI:      &UI{Type: UIError, Title: "Error"},
		}, nil
	}

	if amount <= 0 {
		return Response{
			Stage:   StageNoBalance,
			Intent:  intent.PayTuition,
			Success: true,
			API:     &res,
			Message: fmt.Sprintf("Ödenecek bakiye bulunmuyor./ No outstanding balance (Student No: %s).", studentNo),
			UI:      &UI{Type: UIInfo, Title: "No Balance"},
		}, nil
	}

	r.logger.InfoContext(ctx, "payment card prepared", "student_no", studentNo, "amount", amount)
	return Response{
		Stage:   StageConfirmPay,
		Intent:  intent.PayTuition,
		Success: true,
		API:     &res,
		UI: &UI{
			Type:  UIPayCard,
			Title: "Pay Tuition",
			PaymentRequest: &tuition.PaymentRequest{
				StudentNo: tuition.LooseString(studentNo),
				Term:      tuition.LooseString(jsString(term)),
				Amount:    amount,
			},
		},
	}, nil
}

// Pay submits a confirmed payment with the admin token.
func (r *Router) Pay(ctx context.Context, req tuition.PaymentRequest) (tuition.Result, error) {
	token, err := r.tokens.Token(ctx)
	if err != nil {
		return tuition.Result{}, err
	}
	res, err := r.api.Pay(ctx, token, req)
	if err != nil {
		return tuition.Result{}, err
	}
	r.checkRejected(ctx, res)
	r.logger.InfoContext(ctx, "payment submitted",
		"student_no", string(req.StudentNo),
		"term", string(req.Term),
		"ok", res.OK,
		"status", res.Status)
	return res, nil
}

// checkRejected drops the cached admin token after a 401 so the next
// admin call logs in again. The current call is not retried.
func (r *Router) checkRejected(ctx context.Context, res tuition.Result) {
	if res.Status != http.StatusUnauthorized {
		return
	}
	r.logger.WarnContext(ctx, "admin token rejected, invalidating")
	r.tokens.Invalidate()
}

// PaymentUI is the widget shown after POST /pay.
func PaymentUI(success bool) *UI {
	return &UI{Type: UIPaymentSuccess, Title: "Payment", Success: &success}
}

func clarify(in intent.Intent, msg string) Response {
	return Response{
		Stage:   StageClarify,
		Intent:  in,
		Message: msg,
		UI:      &UI{Type: UIAskStudentNo, Title: "Student Number", Placeholder: "Enter student number"},
	}
}

func apiError(in intent.Intent, res tuition.Result) Response {
	msg := res.Message()
	if msg == "" {
		msg = msgUnknownAPIError
	}
	return Response{
		Stage:   StageError,
		Intent:  in,
		API:     &res,
		Message: fmt.Sprintf("API hatası: %d - %s", res.Status, msg),
		UI:      &UI{Type: UIError, Title: "API Error"},
	}
}

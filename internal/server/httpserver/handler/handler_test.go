package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yndnr/diagsave-go/internal/core/domain"
)

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{domain.ErrBackupNotFound.Code, http.StatusNotFound},
		{domain.ErrBufferClosed.Code, http.StatusGone},
		{domain.ErrRateLimited.Code, http.StatusTooManyRequests},
		{domain.ErrSnapshotValidation.Code, http.StatusBadRequest},
		{domain.ErrNamespaceInvalid.Code, http.StatusBadRequest},
		{domain.ErrQuotaExceeded.Code, http.StatusInsufficientStorage},
		{domain.ErrServiceUnavailable.Code, http.StatusServiceUnavailable},
		{domain.ErrPersistenceWrite.Code, http.StatusInternalServerError},
		{domain.ErrPersistenceRead.Code, http.StatusInternalServerError},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := errorCodeToHTTPStatus(tt.code); got != tt.want {
				t.Errorf("errorCodeToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestHandleServiceError(t *testing.T) {
	h := New(nil, nil)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"quota wrapped in write error", domain.ErrPersistenceWrite.WithCause(domain.ErrQuotaExceeded), http.StatusInsufficientStorage, "DS-BKP-5070"},
		{"not found", domain.ErrBackupNotFound, http.StatusNotFound, "DS-BKP-4040"},
		{"plain error", errors.New("disk on fire"), http.StatusInternalServerError, "DS-SYS-5000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.handleServiceError(rec, httptest.NewRequest("GET", "/", nil), tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("X-Error-Code"); got != tt.wantCode {
				t.Errorf("X-Error-Code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

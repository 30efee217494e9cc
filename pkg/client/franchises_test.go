package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFranchisesClient_Status(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/franchises/12/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"is_expired":true,"can_renew":true,"effective_status":"approved","effective_source":"renewal","expiry_date":"2024-01-10T00:00:00+08:00"}`))
	})

	st, err := c.Franchises().Status(context.Background(), 12)
	require.NoError(t, err)
	assert.True(t, st.IsExpired)
	assert.True(t, st.CanRenew)
	assert.Equal(t, "renewal", st.EffectiveSource)
	require.NotNil(t, st.ExpiryDate)
	assert.Equal(t, 10, st.ExpiryDate.Day())
}

func TestFranchisesClient_GetByPlateEscapes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/franchises/plate/ABC%20123", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"id":3,"plate_no":"ABC 123","approval_status":"pending-validation"}`))
	})

	f, err := c.Franchises().GetByPlate(context.Background(), "ABC 123")
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.ID)
	assert.Equal(t, "pending-validation", f.ApprovalStatus)

	_, err = c.Franchises().GetByPlate(context.Background(), " ")
	assert.Error(t, err)
}

func TestFranchisesClient_Rates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/franchises/5/rates", r.URL.Path)
		_, _ = w.Write([]byte(`{"franchise_id":5,"registration":{"id":1,"fee_type":"registration","fees":[{"name":"Filing","amount":50000}]},"renewal":null,"registration_missing":false,"renewal_missing":true,"registration_total":"500.00","renewal_total":"0.00"}`))
	})

	rates, err := c.Franchises().Rates(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, rates.Registration)
	assert.Equal(t, int64(50000), rates.Registration.Fees[0].Amount)
	assert.Nil(t, rates.Renewal)
	assert.True(t, rates.RenewalMissing)
	assert.Equal(t, "500.00", rates.RegistrationTotal)
}

func TestFranchisesClient_Transition(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		status   string
		remarks  []Remark
		wantPath string
		wantBody string
	}{
		{"advance franchise", KindFranchise, "", nil, "/api/v1/franchises/9/approval-status", `{}`},
		{"reject renewal with remark", KindRenewal, "rejected", []Remark{{Remark: "blurred CR"}}, "/api/v1/franchise-renewals/9/approval-status", `{"status":"rejected","remarks":[{"remark":"blurred CR"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPatch, r.Method)
				assert.Equal(t, tt.wantPath, r.URL.Path)
				body, _ := io.ReadAll(r.Body)
				assert.JSONEq(t, tt.wantBody, string(body))
				_ = json.NewEncoder(w).Encode(TransitionResult{Kind: tt.kind, ID: 9, From: "pending-validation", To: "validated"})
			})

			res, err := c.Franchises().Transition(context.Background(), tt.kind, 9, tt.status, tt.remarks...)
			require.NoError(t, err)
			assert.Equal(t, "validated", res.To)
		})
	}
}

func TestFranchisesClient_Pay(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/franchises/2/payment", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"or_no":"OR-77"}`, string(body))
		_ = json.NewEncoder(w).Encode(TransitionResult{Kind: KindFranchise, ID: 2, From: "validated", To: "paid"})
	})

	res, err := c.Franchises().Pay(context.Background(), KindFranchise, 2, "OR-77")
	require.NoError(t, err)
	assert.Equal(t, "paid", res.To)

	_, err = c.Franchises().Pay(context.Background(), KindFranchise, 2, "")
	assert.Error(t, err)
	_, err = c.Franchises().Pay(context.Background(), "permit", 2, "OR-1")
	assert.EqualError(t, err, `client: unknown record kind "permit"`)
}

func TestFranchisesClient_InvalidTransitionSurfacesCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"FRN_010","message":"approval status transition not allowed"}`))
	})

	_, err := c.Franchises().Transition(context.Background(), KindFranchise, 1, "approved")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsConflict())
	assert.Equal(t, "FRN_010", apiErr.Code)
}

func TestRateSheetsClient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/rate-sheets/latest":
			_, _ = w.Write([]byte(`[{"id":2,"fee_type":"registration"},{"id":3,"fee_type":"renewal"}]`))
		case "/api/v1/rate-sheets/history":
			assert.Equal(t, "renewal", r.URL.Query().Get("fee_type"))
			_, _ = w.Write([]byte(`[{"id":3,"fee_type":"renewal"},{"id":1,"fee_type":"renewal"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	latest, err := c.RateSheets().Latest(context.Background())
	require.NoError(t, err)
	assert.Len(t, latest, 2)

	history, err := c.RateSheets().History(context.Background(), "renewal")
	require.NoError(t, err)
	assert.Equal(t, int64(3), history[0].ID)

	_, err = c.RateSheets().History(context.Background(), "")
	assert.Error(t, err)
}

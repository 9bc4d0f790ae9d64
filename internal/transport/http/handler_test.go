package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/focusroom/presence-service/internal/reconcile"
	httpmw "github.com/focusroom/presence-service/internal/transport/http/middleware"
)

func milestonesRequest(t *testing.T, h *Handler, userID string) MilestoneResponse {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/milestones", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("X-User-ID", userID)
	rec := httptest.NewRecorder()

	httpmw.AuthMiddleware(http.HandlerFunc(h.GetMilestones)).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp MilestoneResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return resp
}

func TestMilestonesPopupOnExactThreshold(t *testing.T) {
	agg := reconcile.NewAggregates()
	agg.Refresh("u1", reconcile.Totals{TasksDone: 5, TotalSeconds: 1500})
	h := NewHandler(nil, nil, nil, nil, nil, agg, nil)

	resp := milestonesRequest(t, h, "u1")
	if !resp.ShouldShowPopup {
		t.Fatal("ровно на рубеже клиенту говорим показать попап")
	}
	if resp.Crossed != 5 {
		t.Fatalf("crossed = %d", resp.Crossed)
	}
	if resp.Next != 10 {
		t.Fatalf("next = %d", resp.Next)
	}
}

func TestMilestonesNoPopupBetweenThresholds(t *testing.T) {
	agg := reconcile.NewAggregates()
	agg.Refresh("u1", reconcile.Totals{TasksDone: 6, TotalSeconds: 1800})
	h := NewHandler(nil, nil, nil, nil, nil, agg, nil)

	resp := milestonesRequest(t, h, "u1")
	if resp.ShouldShowPopup {
		t.Fatal("между рубежами попап не показываем")
	}
	if resp.Crossed != 0 {
		t.Fatalf("crossed = %d", resp.Crossed)
	}
	if resp.Next != 10 {
		t.Fatalf("next = %d", resp.Next)
	}
}

func TestMilestonesPendingDelta(t *testing.T) {
	agg := reconcile.NewAggregates()
	agg.Refresh("u1", reconcile.Totals{TasksDone: 4, TotalSeconds: 1200})
	agg.ApplyDelta("u1", 300)
	h := NewHandler(nil, nil, nil, nil, nil, agg, nil)

	resp := milestonesRequest(t, h, "u1")
	if !resp.Pending {
		t.Fatal("неподтверждённая дельта должна подсветить pending")
	}
	if !resp.ShouldShowPopup || resp.Crossed != 5 {
		t.Fatalf("дельта довела до рубежа: popup=%v crossed=%d", resp.ShouldShowPopup, resp.Crossed)
	}
}

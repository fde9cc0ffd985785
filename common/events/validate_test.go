package events

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func validFacebookTop() map[string]interface{} {
	return map[string]interface{}{
		"eventId":     "fb-evt-1",
		"timestamp":   "2026-08-01T10:30:00Z",
		"source":      "facebook",
		"funnelStage": "top",
		"eventType":   "ad.view",
		"data": map[string]interface{}{
			"user": map[string]interface{}{
				"userId": "fb-user-1",
				"name":   "Jamie Rivera",
				"age":    34,
				"gender": "female",
				"location": map[string]interface{}{
					"country": "US",
					"city":    "Austin",
				},
			},
			"engagement": map[string]interface{}{
				"actionTime": "2026-08-01T10:29:58Z",
				"referrer":   "newsfeed",
				"videoId":    nil,
			},
		},
	}
}

func validTiktokBottom() map[string]interface{} {
	return map[string]interface{}{
		"eventId":     "tt-evt-1",
		"timestamp":   "2026-08-01T11:00:00Z",
		"source":      "tiktok",
		"funnelStage": "bottom",
		"eventType":   "purchase",
		"data": map[string]interface{}{
			"user": map[string]interface{}{
				"userId":    "tt-user-1",
				"username":  "dancemachine",
				"followers": 15000,
			},
			"engagement": map[string]interface{}{
				"actionTime":     "2026-08-01T10:59:59Z",
				"profileId":      nil,
				"purchasedItem":  "ring light",
				"purchaseAmount": "49.99",
			},
		},
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return b
}

func TestParse_FacebookTopFunnel(t *testing.T) {
	ev, err := Parse(mustJSON(t, validFacebookTop()))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if ev.EventID != "fb-evt-1" {
		t.Errorf("EventID = %q, want %q", ev.EventID, "fb-evt-1")
	}
	if ev.Source != SourceFacebook {
		t.Errorf("Source = %q, want facebook", ev.Source)
	}
	if ev.FunnelStage != StageTop {
		t.Errorf("FunnelStage = %q, want top", ev.FunnelStage)
	}
	if ev.Data.User.Facebook == nil {
		t.Fatal("Data.User.Facebook is nil")
	}
	if got := ev.Data.User.UserID(); got != "fb-user-1" {
		t.Errorf("UserID() = %q, want %q", got, "fb-user-1")
	}
	if ev.Data.Engagement.FacebookTop == nil {
		t.Fatal("engagement did not resolve to the facebook top-funnel variant")
	}
	if ev.Data.Engagement.FacebookTop.VideoID != nil {
		t.Errorf("VideoID = %v, want nil", *ev.Data.Engagement.FacebookTop.VideoID)
	}
}

func TestParse_TiktokBottomFunnel(t *testing.T) {
	ev, err := Parse(mustJSON(t, validTiktokBottom()))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if ev.Data.User.Tiktok == nil {
		t.Fatal("Data.User.Tiktok is nil")
	}
	if ev.Data.User.Tiktok.Followers != 15000 {
		t.Errorf("Followers = %d, want 15000", ev.Data.User.Tiktok.Followers)
	}
	if ev.Data.Engagement.TiktokBottom == nil {
		t.Fatal("engagement did not resolve to the tiktok bottom-funnel variant")
	}
	amount, ok := ev.Data.Engagement.PurchaseAmount()
	if !ok || amount != "49.99" {
		t.Errorf("PurchaseAmount() = %q, %v, want %q, true", amount, ok, "49.99")
	}
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(m map[string]interface{})
		wantField string
	}{
		{
			name:      "missing eventId",
			mutate:    func(m map[string]interface{}) { delete(m, "eventId") },
			wantField: "eventId",
		},
		{
			name:      "missing source",
			mutate:    func(m map[string]interface{}) { delete(m, "source") },
			wantField: "source",
		},
		{
			name:      "unknown source",
			mutate:    func(m map[string]interface{}) { m["source"] = "snapchat" },
			wantField: "source",
		},
		{
			name:      "bad timestamp",
			mutate:    func(m map[string]interface{}) { m["timestamp"] = "yesterday" },
			wantField: "timestamp",
		},
		{
			name:      "unknown funnel stage",
			mutate:    func(m map[string]interface{}) { m["funnelStage"] = "middle" },
			wantField: "funnelStage",
		},
		{
			name:      "event type from the wrong source",
			mutate:    func(m map[string]interface{}) { m["eventType"] = "purchase" },
			wantField: "eventType",
		},
		{
			name: "missing user",
			mutate: func(m map[string]interface{}) {
				delete(m["data"].(map[string]interface{}), "user")
			},
			wantField: "data.user",
		},
		{
			name: "missing engagement",
			mutate: func(m map[string]interface{}) {
				delete(m["data"].(map[string]interface{}), "engagement")
			},
			wantField: "data.engagement",
		},
		{
			name: "user missing userId",
			mutate: func(m map[string]interface{}) {
				delete(m["data"].(map[string]interface{})["user"].(map[string]interface{}), "userId")
			},
			wantField: "data.user.userId",
		},
		{
			name: "user with bad gender enum",
			mutate: func(m map[string]interface{}) {
				m["data"].(map[string]interface{})["user"].(map[string]interface{})["gender"] = "unknown"
			},
			wantField: "data.user.gender",
		},
		{
			name: "engagement matches no variant",
			mutate: func(m map[string]interface{}) {
				m["data"].(map[string]interface{})["engagement"] = map[string]interface{}{
					"somethingElse": true,
				}
			},
			wantField: "data.engagement",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := validFacebookTop()
			tt.mutate(payload)

			_, err := Parse(mustJSON(t, payload))
			if err == nil {
				t.Fatal("Parse() accepted an invalid payload")
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error type = %T, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("ValidationError.Field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestParse_SourceCheckedBeforeVariants(t *testing.T) {
	// A payload with garbage everywhere but a missing source must be
	// rejected on source, not on any variant-specific field.
	payload := map[string]interface{}{
		"eventId":     "x",
		"timestamp":   "2026-08-01T10:30:00Z",
		"funnelStage": "top",
		"eventType":   "ad.view",
		"data":        map[string]interface{}{"user": 12, "engagement": false},
	}

	_, err := Parse(mustJSON(t, payload))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if verr.Field != "source" {
		t.Errorf("ValidationError.Field = %q, want %q", verr.Field, "source")
	}
}

func TestParse_EngagementVariantOrder(t *testing.T) {
	// An engagement satisfying the bottom-funnel shape resolves to the
	// bottom variant even when funnelStage says top; the union is resolved
	// by shape, not by the stage field.
	payload := validFacebookTop()
	payload["data"].(map[string]interface{})["engagement"] = map[string]interface{}{
		"adId":           "ad-1",
		"campaignId":     "camp-1",
		"clickPosition":  "center",
		"device":         "mobile",
		"browser":        "Chrome",
		"purchaseAmount": "12.50",
	}

	ev, err := Parse(mustJSON(t, payload))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ev.Data.Engagement.FacebookBottom == nil {
		t.Fatal("engagement did not resolve to the facebook bottom-funnel variant")
	}
	if ev.Data.Engagement.FacebookTop != nil {
		t.Fatal("both engagement variants set")
	}
}

func TestParse_IgnoresUnknownFields(t *testing.T) {
	payload := validTiktokBottom()
	payload["extra"] = "ignored"
	payload["data"].(map[string]interface{})["user"].(map[string]interface{})["verified"] = true

	if _, err := Parse(mustJSON(t, payload)); err != nil {
		t.Fatalf("Parse() error = %v, want nil", err)
	}
}

func TestEvent_RoundTrip(t *testing.T) {
	for _, fixture := range []map[string]interface{}{validFacebookTop(), validTiktokBottom()} {
		original, err := Parse(mustJSON(t, fixture))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}

		wire, err := json.Marshal(original)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}

		var decoded Event
		if err := json.Unmarshal(wire, &decoded); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}

		if !reflect.DeepEqual(original, &decoded) {
			t.Errorf("round trip changed the event:\n  original: %+v\n  decoded:  %+v", original, decoded)
		}
	}
}

func TestValidationError_Message(t *testing.T) {
	err := invalid("data.user.age", "must be an integer")
	if !strings.Contains(err.Error(), "data.user.age") {
		t.Errorf("Error() = %q, should name the field", err.Error())
	}
}

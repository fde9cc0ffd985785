// Package events defines the webhook event model shared by the gateway,
// collectors and reporter, together with the schema validation that turns
// untrusted payloads into typed events.
package events

import (
	"encoding/json"
	"time"
)

// Source identifies the originating ad platform of an event.
type Source string

const (
	SourceFacebook Source = "facebook"
	SourceTiktok   Source = "tiktok"
)

// Sources lists every supported event source.
var Sources = []Source{SourceFacebook, SourceTiktok}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceFacebook || s == SourceTiktok
}

// FunnelStage places an event in the marketing funnel.
type FunnelStage string

const (
	StageTop    FunnelStage = "top"
	StageBottom FunnelStage = "bottom"
)

// Event types allowed per source. The engagement payload is not constrained
// by event type beyond these sets; see Parse.
var (
	facebookEventTypes = []string{
		"ad.view", "page.like", "comment", "video.view",
		"ad.click", "form.submission", "checkout.complete",
	}
	tiktokEventTypes = []string{
		"video.view", "like", "share", "comment",
		"profile.visit", "purchase", "follow",
	}
)

// FacebookUserLocation is the location block of a Facebook user snapshot.
type FacebookUserLocation struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// FacebookUser is the acting-user snapshot embedded in Facebook events.
type FacebookUser struct {
	UserID   string               `json:"userId"`
	Name     string               `json:"name"`
	Age      int                  `json:"age"`
	Gender   string               `json:"gender"`
	Location FacebookUserLocation `json:"location"`
}

// TiktokUser is the acting-user snapshot embedded in TikTok events.
type TiktokUser struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Followers int    `json:"followers"`
}

// FacebookEngagementTop is the top-funnel Facebook engagement payload.
type FacebookEngagementTop struct {
	ActionTime string  `json:"actionTime"`
	Referrer   string  `json:"referrer"`
	VideoID    *string `json:"videoId"`
}

// FacebookEngagementBottom is the bottom-funnel Facebook engagement payload.
type FacebookEngagementBottom struct {
	AdID           string  `json:"adId"`
	CampaignID     string  `json:"campaignId"`
	ClickPosition  string  `json:"clickPosition"`
	Device         string  `json:"device"`
	Browser        string  `json:"browser"`
	PurchaseAmount *string `json:"purchaseAmount"`
}

// TiktokEngagementTop is the top-funnel TikTok engagement payload.
type TiktokEngagementTop struct {
	WatchTime         float64 `json:"watchTime"`
	PercentageWatched float64 `json:"percentageWatched"`
	Device            string  `json:"device"`
	Country           string  `json:"country"`
	VideoID           string  `json:"videoId"`
}

// TiktokEngagementBottom is the bottom-funnel TikTok engagement payload.
type TiktokEngagementBottom struct {
	ActionTime     string  `json:"actionTime"`
	ProfileID      *string `json:"profileId"`
	PurchasedItem  *string `json:"purchasedItem"`
	PurchaseAmount *string `json:"purchaseAmount"`
}

// User is a tagged union over the per-source user snapshot shapes.
// Exactly one variant is set on a validated event.
type User struct {
	Facebook *FacebookUser `json:"-"`
	Tiktok   *TiktokUser   `json:"-"`
}

// UserID returns the platform user identifier of whichever variant is set.
func (u User) UserID() string {
	switch {
	case u.Facebook != nil:
		return u.Facebook.UserID
	case u.Tiktok != nil:
		return u.Tiktok.UserID
	}
	return ""
}

// MarshalJSON emits the set variant as a plain object.
func (u User) MarshalJSON() ([]byte, error) {
	switch {
	case u.Facebook != nil:
		return json.Marshal(u.Facebook)
	case u.Tiktok != nil:
		return json.Marshal(u.Tiktok)
	}
	return []byte("null"), nil
}

// Engagement is a tagged union over the source and funnel-stage engagement
// shapes. The schema carries no explicit discriminator on the engagement
// object itself; the tag is inferred structurally during validation by
// attempting the top-funnel shape first, then the bottom-funnel shape.
// Adding overlapping fields between the two variants of a source would
// silently change which variant wins.
type Engagement struct {
	FacebookTop    *FacebookEngagementTop    `json:"-"`
	FacebookBottom *FacebookEngagementBottom `json:"-"`
	TiktokTop      *TiktokEngagementTop      `json:"-"`
	TiktokBottom   *TiktokEngagementBottom   `json:"-"`
}

// MarshalJSON emits the set variant as a plain object.
func (e Engagement) MarshalJSON() ([]byte, error) {
	switch {
	case e.FacebookTop != nil:
		return json.Marshal(e.FacebookTop)
	case e.FacebookBottom != nil:
		return json.Marshal(e.FacebookBottom)
	case e.TiktokTop != nil:
		return json.Marshal(e.TiktokTop)
	case e.TiktokBottom != nil:
		return json.Marshal(e.TiktokBottom)
	}
	return []byte("null"), nil
}

// PurchaseAmount returns the purchase amount carried by the engagement
// payload, if any. Only bottom-funnel payloads can carry one.
func (e Engagement) PurchaseAmount() (string, bool) {
	switch {
	case e.FacebookBottom != nil && e.FacebookBottom.PurchaseAmount != nil:
		return *e.FacebookBottom.PurchaseAmount, true
	case e.TiktokBottom != nil && e.TiktokBottom.PurchaseAmount != nil:
		return *e.TiktokBottom.PurchaseAmount, true
	}
	return "", false
}

// EventData carries the user snapshot and engagement payload of an event.
type EventData struct {
	User       User       `json:"user"`
	Engagement Engagement `json:"engagement"`
}

// Event is a validated webhook event. Events are immutable once created;
// EventID is caller-assigned and globally unique in storage, making it the
// natural idempotency key for redelivery handling.
type Event struct {
	EventID     string      `json:"eventId"`
	Timestamp   time.Time   `json:"timestamp"`
	Source      Source      `json:"source"`
	FunnelStage FunnelStage `json:"funnelStage"`
	EventType   string      `json:"eventType"`
	Data        EventData   `json:"data"`
}

// UnmarshalJSON performs the same strict schema validation as Parse, so a
// message body reconstituted at the consumer goes through exactly the code
// path used at ingress.
func (e *Event) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*e = *parsed
	return nil
}

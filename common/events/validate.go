package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ValidationError describes the first structural violation found in a
// payload. It is a client error: the payload can never become valid by
// retrying.
type ValidationError struct {
	// Field is the JSON path of the offending field, empty when the
	// payload as a whole is malformed.
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid event: " + e.Reason
	}
	return fmt.Sprintf("invalid event: field %q %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Parse validates a raw webhook payload against the discriminated event
// schema and returns a fully typed Event. The source field is checked
// before any source-specific shape, and the engagement variant is selected
// structurally: the top-funnel shape is attempted first, then the
// bottom-funnel shape, and the first match wins.
//
// Parse has no side effects and is deterministic.
func Parse(data []byte) (*Event, error) {
	var raw struct {
		EventID     *string `json:"eventId"`
		Timestamp   *string `json:"timestamp"`
		Source      *string `json:"source"`
		FunnelStage *string `json:"funnelStage"`
		EventType   *string `json:"eventType"`
		Data        *struct {
			User       json.RawMessage `json:"user"`
			Engagement json.RawMessage `json:"engagement"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, invalid("", "payload is not a JSON event object: "+err.Error())
	}

	if raw.EventID == nil || *raw.EventID == "" {
		return nil, invalid("eventId", "is required")
	}
	if raw.Timestamp == nil {
		return nil, invalid("timestamp", "is required")
	}
	ts, err := time.Parse(time.RFC3339, *raw.Timestamp)
	if err != nil {
		return nil, invalid("timestamp", "must be an RFC 3339 timestamp")
	}

	// The source discriminator must be resolved before any variant-specific
	// checks; an unknown source can never reach user/engagement validation.
	if raw.Source == nil {
		return nil, invalid("source", "is required")
	}
	source := Source(*raw.Source)
	if !source.Valid() {
		return nil, invalid("source", fmt.Sprintf("unknown value %q", *raw.Source))
	}

	if raw.FunnelStage == nil {
		return nil, invalid("funnelStage", "is required")
	}
	stage := FunnelStage(*raw.FunnelStage)
	if stage != StageTop && stage != StageBottom {
		return nil, invalid("funnelStage", fmt.Sprintf("unknown value %q", *raw.FunnelStage))
	}

	if raw.EventType == nil {
		return nil, invalid("eventType", "is required")
	}
	allowed := facebookEventTypes
	if source == SourceTiktok {
		allowed = tiktokEventTypes
	}
	if !contains(allowed, *raw.EventType) {
		return nil, invalid("eventType", fmt.Sprintf("%q is not valid for source %q", *raw.EventType, source))
	}

	if raw.Data == nil {
		return nil, invalid("data", "is required")
	}
	if len(raw.Data.User) == 0 {
		return nil, invalid("data.user", "is required")
	}
	if len(raw.Data.Engagement) == 0 {
		return nil, invalid("data.engagement", "is required")
	}

	ev := &Event{
		EventID:     *raw.EventID,
		Timestamp:   ts,
		Source:      source,
		FunnelStage: stage,
		EventType:   *raw.EventType,
	}

	switch source {
	case SourceFacebook:
		user, verr := parseFacebookUser(raw.Data.User)
		if verr != nil {
			return nil, verr
		}
		ev.Data.User = User{Facebook: user}

		eng, verr := parseFacebookEngagement(raw.Data.Engagement)
		if verr != nil {
			return nil, verr
		}
		ev.Data.Engagement = eng

	case SourceTiktok:
		user, verr := parseTiktokUser(raw.Data.User)
		if verr != nil {
			return nil, verr
		}
		ev.Data.User = User{Tiktok: user}

		eng, verr := parseTiktokEngagement(raw.Data.Engagement)
		if verr != nil {
			return nil, verr
		}
		ev.Data.Engagement = eng
	}

	return ev, nil
}

func parseFacebookUser(raw json.RawMessage) (*FacebookUser, *ValidationError) {
	obj, verr := decodeObject(raw, "data.user")
	if verr != nil {
		return nil, verr
	}

	user := &FacebookUser{}
	if user.UserID, verr = obj.requireString("data.user", "userId"); verr != nil {
		return nil, verr
	}
	if user.Name, verr = obj.requireString("data.user", "name"); verr != nil {
		return nil, verr
	}
	if user.Age, verr = obj.requireInt("data.user", "age"); verr != nil {
		return nil, verr
	}
	if user.Gender, verr = obj.requireEnum("data.user", "gender", "male", "female", "non-binary"); verr != nil {
		return nil, verr
	}

	locRaw, ok := obj["location"]
	if !ok {
		return nil, invalid("data.user.location", "is required")
	}
	loc, verr := decodeObject(locRaw, "data.user.location")
	if verr != nil {
		return nil, verr
	}
	if user.Location.Country, verr = loc.requireString("data.user.location", "country"); verr != nil {
		return nil, verr
	}
	if user.Location.City, verr = loc.requireString("data.user.location", "city"); verr != nil {
		return nil, verr
	}

	return user, nil
}

func parseTiktokUser(raw json.RawMessage) (*TiktokUser, *ValidationError) {
	obj, verr := decodeObject(raw, "data.user")
	if verr != nil {
		return nil, verr
	}

	user := &TiktokUser{}
	if user.UserID, verr = obj.requireString("data.user", "userId"); verr != nil {
		return nil, verr
	}
	if user.Username, verr = obj.requireString("data.user", "username"); verr != nil {
		return nil, verr
	}
	if user.Followers, verr = obj.requireInt("data.user", "followers"); verr != nil {
		return nil, verr
	}

	return user, nil
}

func parseFacebookEngagement(raw json.RawMessage) (Engagement, *ValidationError) {
	obj, verr := decodeObject(raw, "data.engagement")
	if verr != nil {
		return Engagement{}, verr
	}

	if top, ok := tryFacebookTop(obj); ok {
		return Engagement{FacebookTop: top}, nil
	}
	if bottom, ok := tryFacebookBottom(obj); ok {
		return Engagement{FacebookBottom: bottom}, nil
	}
	return Engagement{}, invalid("data.engagement", "matches neither the facebook top-funnel nor bottom-funnel shape")
}

func tryFacebookTop(obj object) (*FacebookEngagementTop, bool) {
	eng := &FacebookEngagementTop{}
	var verr *ValidationError
	if eng.ActionTime, verr = obj.requireString("", "actionTime"); verr != nil {
		return nil, false
	}
	if eng.Referrer, verr = obj.requireEnum("", "referrer", "newsfeed", "marketplace", "groups"); verr != nil {
		return nil, false
	}
	if eng.VideoID, verr = obj.nullableString("", "videoId"); verr != nil {
		return nil, false
	}
	return eng, true
}

func tryFacebookBottom(obj object) (*FacebookEngagementBottom, bool) {
	eng := &FacebookEngagementBottom{}
	var verr *ValidationError
	if eng.AdID, verr = obj.requireString("", "adId"); verr != nil {
		return nil, false
	}
	if eng.CampaignID, verr = obj.requireString("", "campaignId"); verr != nil {
		return nil, false
	}
	if eng.ClickPosition, verr = obj.requireEnum("", "clickPosition", "top_left", "bottom_right", "center"); verr != nil {
		return nil, false
	}
	if eng.Device, verr = obj.requireEnum("", "device", "mobile", "desktop"); verr != nil {
		return nil, false
	}
	if eng.Browser, verr = obj.requireEnum("", "browser", "Chrome", "Firefox", "Safari"); verr != nil {
		return nil, false
	}
	if eng.PurchaseAmount, verr = obj.nullableString("", "purchaseAmount"); verr != nil {
		return nil, false
	}
	return eng, true
}

func parseTiktokEngagement(raw json.RawMessage) (Engagement, *ValidationError) {
	obj, verr := decodeObject(raw, "data.engagement")
	if verr != nil {
		return Engagement{}, verr
	}

	if top, ok := tryTiktokTop(obj); ok {
		return Engagement{TiktokTop: top}, nil
	}
	if bottom, ok := tryTiktokBottom(obj); ok {
		return Engagement{TiktokBottom: bottom}, nil
	}
	return Engagement{}, invalid("data.engagement", "matches neither the tiktok top-funnel nor bottom-funnel shape")
}

func tryTiktokTop(obj object) (*TiktokEngagementTop, bool) {
	eng := &TiktokEngagementTop{}
	var verr *ValidationError
	if eng.WatchTime, verr = obj.requireNumber("", "watchTime"); verr != nil {
		return nil, false
	}
	if eng.PercentageWatched, verr = obj.requireNumber("", "percentageWatched"); verr != nil {
		return nil, false
	}
	if eng.Device, verr = obj.requireEnum("", "device", "Android", "iOS", "Desktop"); verr != nil {
		return nil, false
	}
	if eng.Country, verr = obj.requireString("", "country"); verr != nil {
		return nil, false
	}
	if eng.VideoID, verr = obj.requireString("", "videoId"); verr != nil {
		return nil, false
	}
	return eng, true
}

func tryTiktokBottom(obj object) (*TiktokEngagementBottom, bool) {
	eng := &TiktokEngagementBottom{}
	var verr *ValidationError
	if eng.ActionTime, verr = obj.requireString("", "actionTime"); verr != nil {
		return nil, false
	}
	if eng.ProfileID, verr = obj.nullableString("", "profileId"); verr != nil {
		return nil, false
	}
	if eng.PurchasedItem, verr = obj.nullableString("", "purchasedItem"); verr != nil {
		return nil, false
	}
	if eng.PurchaseAmount, verr = obj.nullableString("", "purchaseAmount"); verr != nil {
		return nil, false
	}
	return eng, true
}

// object is a shallow decode of a JSON object, used to distinguish
// missing fields from wrongly typed ones. Unknown extra fields are
// ignored, matching the tolerant reading of upstream webhook payloads.
type object map[string]json.RawMessage

func decodeObject(raw json.RawMessage, path string) (object, *ValidationError) {
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, invalid(path, "must be an object")
	}
	return obj, nil
}

func (o object) requireString(path, field string) (string, *ValidationError) {
	raw, ok := o[field]
	if !ok {
		return "", invalid(join(path, field), "is required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalid(join(path, field), "must be a string")
	}
	return s, nil
}

func (o object) requireEnum(path, field string, allowed ...string) (string, *ValidationError) {
	s, verr := o.requireString(path, field)
	if verr != nil {
		return "", verr
	}
	if !contains(allowed, s) {
		return "", invalid(join(path, field), fmt.Sprintf("must be one of %v", allowed))
	}
	return s, nil
}

func (o object) requireNumber(path, field string) (float64, *ValidationError) {
	raw, ok := o[field]
	if !ok {
		return 0, invalid(join(path, field), "is required")
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, invalid(join(path, field), "must be a number")
	}
	return n, nil
}

func (o object) requireInt(path, field string) (int, *ValidationError) {
	raw, ok := o[field]
	if !ok {
		return 0, invalid(join(path, field), "is required")
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return 0, invalid(join(path, field), "must be a number")
	}
	n, err := strconv.Atoi(num.String())
	if err != nil {
		return 0, invalid(join(path, field), "must be an integer")
	}
	return n, nil
}

// nullableString requires the field to be present but accepts JSON null.
func (o object) nullableString(path, field string) (*string, *ValidationError) {
	raw, ok := o[field]
	if !ok {
		return nil, invalid(join(path, field), "is required")
	}
	if string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, invalid(join(path, field), "must be a string or null")
	}
	return &s, nil
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

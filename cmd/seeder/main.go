// seeder generates realistic webhook events and posts them to a running
// gateway. It is a development tool; the payloads it produces always pass
// schema validation unless -invalid-rate is set.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/admetry-labs/admetry/common/events"
)

var (
	gatewayURL  = flag.String("gateway-url", "http://localhost:3000", "gateway base URL")
	count       = flag.Int("count", 100, "number of events to generate")
	interval    = flag.Duration("interval", 50*time.Millisecond, "interval between events")
	timeSpread  = flag.Duration("time-spread", 24*time.Hour, "spread event timestamps over this period (0 for now)")
	invalidRate = flag.Float64("invalid-rate", 0, "fraction of events to corrupt (0..1), for testing rejection paths")
)

func main() {
	flag.Parse()

	gofakeit.Seed(time.Now().UnixNano())

	log.Printf("Starting seeder:")
	log.Printf("  Gateway URL: %s", *gatewayURL)
	log.Printf("  Event count: %d", *count)
	log.Printf("  Interval: %v", *interval)
	log.Printf("  Time spread: %v", *timeSpread)

	client := &http.Client{Timeout: 10 * time.Second}

	successCount := 0
	rejectedCount := 0
	failCount := 0

	for i := 0; i < *count; i++ {
		ev := generateEvent()

		body, err := json.Marshal(ev)
		if err != nil {
			log.Fatalf("Failed to encode event: %v", err)
		}

		if *invalidRate > 0 && rand.Float64() < *invalidRate {
			body = corrupt(body)
		}

		status, err := send(client, *gatewayURL+"/events", body)
		switch {
		case err != nil:
			failCount++
			log.Printf("Failed to send event: %v", err)
		case status == http.StatusOK:
			successCount++
		case status == http.StatusBadRequest:
			rejectedCount++
		default:
			failCount++
			log.Printf("Unexpected status %d", status)
		}

		if (i+1)%50 == 0 {
			log.Printf("Progress: %d/%d events sent", i+1, *count)
		}

		if *interval > 0 && i < *count-1 {
			time.Sleep(*interval)
		}
	}

	log.Printf("Seeding complete:")
	log.Printf("  Accepted: %d events", successCount)
	log.Printf("  Rejected: %d events", rejectedCount)
	log.Printf("  Failed: %d events", failCount)
}

func generateEvent() *events.Event {
	ts := time.Now()
	if *timeSpread > 0 {
		ts = ts.Add(-time.Duration(rand.Int63n(int64(*timeSpread))))
	}

	ev := &events.Event{
		EventID:   uuid.New().String(),
		Timestamp: ts.UTC().Truncate(time.Second),
	}

	if rand.Intn(2) == 0 {
		fillFacebook(ev)
	} else {
		fillTiktok(ev)
	}
	return ev
}

func fillFacebook(ev *events.Event) {
	ev.Source = events.SourceFacebook
	ev.Data.User = events.User{Facebook: &events.FacebookUser{
		UserID: gofakeit.UUID(),
		Name:   gofakeit.Name(),
		Age:    gofakeit.Number(13, 80),
		Gender: pick("male", "female", "non-binary"),
		Location: events.FacebookUserLocation{
			Country: gofakeit.Country(),
			City:    gofakeit.City(),
		},
	}}

	if rand.Intn(2) == 0 {
		ev.FunnelStage = events.StageTop
		ev.EventType = pick("ad.view", "page.like", "comment", "video.view")
		ev.Data.Engagement = events.Engagement{FacebookTop: &events.FacebookEngagementTop{
			ActionTime: gofakeit.Date().Format(time.RFC3339),
			Referrer:   pick("newsfeed", "marketplace", "groups"),
			VideoID:    maybe(gofakeit.UUID()),
		}}
	} else {
		ev.FunnelStage = events.StageBottom
		ev.EventType = pick("ad.click", "form.submission", "checkout.complete")
		var amount *string
		if ev.EventType == "checkout.complete" {
			amount = strPtr(fmt.Sprintf("%.2f", gofakeit.Price(5, 500)))
		}
		ev.Data.Engagement = events.Engagement{FacebookBottom: &events.FacebookEngagementBottom{
			AdID:           gofakeit.UUID(),
			CampaignID:     fmt.Sprintf("camp-%d", gofakeit.Number(1, 20)),
			ClickPosition:  pick("top_left", "bottom_right", "center"),
			Device:         pick("mobile", "desktop"),
			Browser:        pick("Chrome", "Firefox", "Safari"),
			PurchaseAmount: amount,
		}}
	}
}

func fillTiktok(ev *events.Event) {
	ev.Source = events.SourceTiktok
	ev.Data.User = events.User{Tiktok: &events.TiktokUser{
		UserID:    gofakeit.UUID(),
		Username:  gofakeit.Username(),
		Followers: gofakeit.Number(0, 2000000),
	}}

	if rand.Intn(2) == 0 {
		ev.FunnelStage = events.StageTop
		ev.EventType = pick("video.view", "like", "share", "comment")
		ev.Data.Engagement = events.Engagement{TiktokTop: &events.TiktokEngagementTop{
			WatchTime:         float64(gofakeit.Number(1, 300)),
			PercentageWatched: float64(gofakeit.Number(1, 100)),
			Device:            pick("Android", "iOS", "Desktop"),
			Country:           gofakeit.Country(),
			VideoID:           gofakeit.UUID(),
		}}
	} else {
		ev.FunnelStage = events.StageBottom
		ev.EventType = pick("profile.visit", "purchase", "follow")
		var item, amount *string
		if ev.EventType == "purchase" {
			item = strPtr(gofakeit.ProductName())
			amount = strPtr(fmt.Sprintf("%.2f", gofakeit.Price(1, 200)))
		}
		ev.Data.Engagement = events.Engagement{TiktokBottom: &events.TiktokEngagementBottom{
			ActionTime:     gofakeit.Date().Format(time.RFC3339),
			ProfileID:      maybe(gofakeit.UUID()),
			PurchasedItem:  item,
			PurchaseAmount: amount,
		}}
	}
}

func send(client *http.Client, url string, body []byte) (int, error) {
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// corrupt drops the eventType field so the payload fails validation.
func corrupt(body []byte) []byte {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return body
	}
	delete(m, "eventType")
	out, err := json.Marshal(m)
	if err != nil {
		return body
	}
	return out
}

func pick(options ...string) string {
	return options[rand.Intn(len(options))]
}

func maybe(s string) *string {
	if rand.Intn(3) == 0 {
		return nil
	}
	return &s
}

func strPtr(s string) *string {
	return &s
}

//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestNotifyAPI_CreateAndRead(t *testing.T) {
	cfg := LoadCfg()
	WaitHealthz(t, cfg.APIHealthURL, 60*time.Second)

	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	userID := RandID()
	SeedUser(t, db, userID, fmt.Sprintf("api-%d@example.com", userID))

	title := fmt.Sprintf("Trip reminder %d", userID)
	body := fmt.Sprintf(`{
		"user_id": %d,
		"category": "trip_upcoming",
		"priority": "info",
		"title": %q,
		"message": "Your trip to Lisbon starts soon."
	}`, userID, title)
	HTTPDoJSON(t, "POST", cfg.APIBaseURL+"/v1/notifications", userID, []byte(body), 202)

	notifID := WaitNotification(t, db, userID, title, 10*time.Second)

	// unread badge
	b := HTTPDoJSON(t, "GET", cfg.APIBaseURL+"/v1/notifications/unread-count", userID, nil, 200)
	var count struct {
		Unread int64 `json:"unread"`
	}
	if err := json.Unmarshal(b, &count); err != nil {
		t.Fatalf("unread count decode: %v", err)
	}
	if count.Unread < 1 {
		t.Fatalf("unread count = %d, want >= 1", count.Unread)
	}

	// mark read, then the unread filter must exclude it
	HTTPDoJSON(t, "POST", fmt.Sprintf("%s/v1/notifications/%d/read", cfg.APIBaseURL, notifID), userID, nil, 200)
	b = HTTPDoJSON(t, "GET", cfg.APIBaseURL+"/v1/notifications?unread_only=true", userID, nil, 200)
	if string(b) == "" {
		t.Fatalf("empty list response")
	}
	var page struct {
		Items []struct {
			ID int64 `json:"id"`
		} `json:"items"`
	}
	if err := json.Unmarshal(b, &page); err != nil {
		t.Fatalf("list decode: %v", err)
	}
	for _, it := range page.Items {
		if it.ID == notifID {
			t.Fatalf("read notification %d still listed as unread", notifID)
		}
	}
}

func TestNotifyAPI_KafkaEventFlowsToStore(t *testing.T) {
	cfg := LoadCfg()
	WaitHealthz(t, cfg.APIHealthURL, 60*time.Second)
	EnsureTopic(t, cfg.KafkaBootstrap, cfg.EventsTopic)

	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	userID := RandID()
	SeedUser(t, db, userID, fmt.Sprintf("evt-%d@example.com", userID))

	title := fmt.Sprintf("Payment received %d", userID)
	PublishJSON(t, cfg.KafkaBootstrap, cfg.EventsTopic, KeyFromInt64(userID), map[string]any{
		"user_id":  userID,
		"category": "payment_received",
		"title":    title,
		"message":  "We received your payment of 500 EUR.",
	})

	WaitNotification(t, db, userID, title, 25*time.Second)
}

func TestNotifyAPI_PreferenceBlocksInApp(t *testing.T) {
	cfg := LoadCfg()
	WaitHealthz(t, cfg.APIHealthURL, 60*time.Second)

	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	userID := RandID()
	SeedUser(t, db, userID, fmt.Sprintf("pref-%d@example.com", userID))

	// ensure the row exists, then switch the channel off
	HTTPDoJSON(t, "GET", cfg.APIBaseURL+"/v1/preferences", userID, nil, 200)
	HTTPDoJSON(t, "PATCH", cfg.APIBaseURL+"/v1/preferences", userID,
		[]byte(`{"in_app_enabled": false}`), 200)

	title := fmt.Sprintf("Suppressed %d", userID)
	body := fmt.Sprintf(`{
		"user_id": %d,
		"category": "system",
		"title": %q,
		"message": "Should not be stored."
	}`, userID, title)
	HTTPDoJSON(t, "POST", cfg.APIBaseURL+"/v1/notifications", userID, []byte(body), 202)

	time.Sleep(2 * time.Second)
	if ok, _ := FindNotification(t, db, userID, title); ok {
		t.Fatalf("notification stored despite disabled in-app channel")
	}
}

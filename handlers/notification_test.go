package handlers

import (
	"net/http"
	"testing"

	"flowermarket-svc/dispatch"
)

func unreadCount(t *testing.T, env *testEnv, uid string) int {
	t.Helper()
	w := env.do(http.MethodGet, "/api/notifications/unread-count", uid, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	return int(decodeBody(t, w)["count"].(float64))
}

func unread(t *testing.T, env *testEnv, uid string) []map[string]any {
	t.Helper()
	w := env.do(http.MethodGet, "/api/notifications", uid, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	raw, _ := decodeBody(t, w)["data"].([]any)
	notes := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		notes = append(notes, r.(map[string]any))
	}
	return notes
}

func TestNotificationHandler_OrderFansOut(t *testing.T) {
	env := setupTest(t)
	createOrder(t, env, clientUID, 2)

	clientNotes := unread(t, env, clientUID)
	if len(clientNotes) != 1 || clientNotes[0]["title"] != dispatch.TitleOrderConfirmed {
		t.Errorf("Expected one confirmation for the buyer, got %v", clientNotes)
	}
	vendorNotes := unread(t, env, vendorUID)
	if len(vendorNotes) != 1 || vendorNotes[0]["title"] != dispatch.TitleNewOrder {
		t.Errorf("Expected one new-order note for the vendor, got %v", vendorNotes)
	}
	adminNotes := unread(t, env, adminUID)
	if len(adminNotes) != 1 || adminNotes[0]["title"] != dispatch.TitleNewTransaction {
		t.Errorf("Expected one broadcast for admins, got %v", adminNotes)
	}
	if notes := unread(t, env, otherClientUID); len(notes) != 0 {
		t.Errorf("Expected nothing for an unrelated client, got %v", notes)
	}
}

func TestNotificationHandler_UnreadCountMatchesList(t *testing.T) {
	env := setupTest(t)
	createOrder(t, env, clientUID, 1)
	createOrder(t, env, clientUID, 1)

	for _, uid := range []string{clientUID, vendorUID, adminUID, otherVendorUID} {
		if got, want := unreadCount(t, env, uid), len(unread(t, env, uid)); got != want {
			t.Errorf("%s: count %d does not match list length %d", uid, got, want)
		}
	}
}

func TestNotificationHandler_MarkRead_Success(t *testing.T) {
	env := setupTest(t)
	createOrder(t, env, clientUID, 1)
	id := unread(t, env, clientUID)[0]["id"].(string)

	w := env.do(http.MethodPut, "/api/notifications/"+id+"/read", clientUID, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["success"] != true {
		t.Errorf("Expected success true, got %v", body["success"])
	}
	if got := unreadCount(t, env, clientUID); got != 0 {
		t.Errorf("Expected 0 unread after marking read, got %d", got)
	}
}

func TestNotificationHandler_MarkRead_OtherUsersNote(t *testing.T) {
	env := setupTest(t)
	createOrder(t, env, clientUID, 1)
	id := unread(t, env, clientUID)[0]["id"].(string)

	w := env.do(http.MethodPut, "/api/notifications/"+id+"/read", otherClientUID, nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if got := unreadCount(t, env, clientUID); got != 1 {
		t.Errorf("Expected owner's note to stay unread, got count %d", got)
	}
}

func TestNotificationHandler_MarkRead_MalformedID(t *testing.T) {
	env := setupTest(t)

	w := env.do(http.MethodPut, "/api/notifications/not-a-uuid/read", clientUID, nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestNotificationHandler_TrackVisit(t *testing.T) {
	env := setupTest(t)

	w := env.do(http.MethodPost, "/api/market/track-visit?type=Prestataire", "", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	notes := unread(t, env, adminUID)
	if len(notes) != 1 || notes[0]["title"] != dispatch.TitlePrestataireVisit {
		t.Errorf("Expected a prestataire visit broadcast, got %v", notes)
	}
}

// Package main runs end-to-end scenarios against a deployed chat API.
//
// Scenarios cover greeting, session continuity, property questions, the
// buyer to seller relay and admin session cleanup. The relay scenario needs a
// configured LLM provider so that intents classify as cross-party.
//
// Usage:
//
//	SERVICE_JWT_SECRET=... API_BASE_URL=... go run scripts/e2e/run_e2e.go [scenario-name]
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const requestTimeout = 60 * time.Second

var (
	apiBase   string
	jwtSecret string
	client    = &http.Client{Timeout: requestTimeout}
)

type T struct {
	name   string
	passed int
	failed int
}

func (t *T) check(name string, ok bool) {
	if ok {
		t.passed++
		fmt.Printf("  ✅ %s\n", name)
		return
	}
	t.failed++
	fmt.Printf("  ❌ %s\n", name)
}

func (t *T) fatalf(format string, args ...interface{}) {
	t.failed++
	fmt.Printf("  ❌ FATAL: "+format+"\n", args...)
}

type scenario struct {
	Name string
	Fn   func(t *T)
}

func serviceToken(role, subject string) string {
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	if err != nil {
		panic(err)
	}
	return signed
}

func call(method, path, token string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, apiBase+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w (body=%s)", method, path, err, string(raw))
		}
	}
	return resp.StatusCode, nil
}

type chatResponse struct {
	Response       string `json:"response"`
	ConversationID int64  `json:"conversation_id"`
	SessionID      string `json:"session_id"`
	Intent         string `json:"intent"`
}

type historyResponse struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func scenarioHealth(t *T) {
	var body map[string]any
	status, err := call(http.MethodGet, "/health", "", nil, &body)
	if err != nil {
		t.fatalf("health: %v", err)
		return
	}
	t.check("health returns 200", status == http.StatusOK)
	t.check("health reports ok", body["status"] == "ok")
}

func scenarioGreeting(t *T) {
	var resp chatResponse
	status, err := call(http.MethodPost, "/api/v1/chat/general", "", map[string]string{"message": "Hello there"}, &resp)
	if err != nil {
		t.fatalf("general chat: %v", err)
		return
	}
	t.check("general chat returns 200", status == http.StatusOK)
	t.check("session id issued", resp.SessionID != "")
	t.check("conversation id issued", resp.ConversationID > 0)
	t.check("response not empty", strings.TrimSpace(resp.Response) != "")
}

func scenarioSessionContinuity(t *T) {
	var first, second chatResponse
	if _, err := call(http.MethodPost, "/api/v1/chat/general", "", map[string]string{"message": "Hi, I'm looking for a flat in Leeds"}, &first); err != nil {
		t.fatalf("first turn: %v", err)
		return
	}
	if _, err := call(http.MethodPost, "/api/v1/chat/general", "", map[string]string{
		"message":    "What areas would you suggest?",
		"session_id": first.SessionID,
	}, &second); err != nil {
		t.fatalf("second turn: %v", err)
		return
	}
	t.check("same session reused", second.SessionID == first.SessionID)
	t.check("same conversation reused", second.ConversationID == first.ConversationID)

	var history historyResponse
	status, err := call(http.MethodGet, fmt.Sprintf("/api/v1/conversations/general/%d/history", first.ConversationID), "", nil, &history)
	if err != nil {
		t.fatalf("history: %v", err)
		return
	}
	t.check("history returns 200", status == http.StatusOK)
	t.check("history holds both turns", len(history.Messages) >= 4)
}

func scenarioPropertyChat(t *T) {
	buyer := "e2e-buyer-" + uuid.NewString()[:8]
	var resp chatResponse
	status, err := call(http.MethodPost, "/api/v1/chat/property", "", map[string]string{
		"message":     "How many bedrooms does this property have?",
		"user_id":     buyer,
		"property_id": os.Getenv("E2E_PROPERTY_ID"),
		"role":        "buyer",
	}, &resp)
	if err != nil {
		t.fatalf("property chat: %v", err)
		return
	}
	if os.Getenv("E2E_PROPERTY_ID") == "" {
		t.check("missing property id rejected", status == http.StatusBadRequest)
		return
	}
	t.check("property chat returns 200", status == http.StatusOK)
	t.check("property conversation created", resp.ConversationID > 0)
	t.check("response not empty", strings.TrimSpace(resp.Response) != "")
}

func scenarioSellerRelay(t *T) {
	propertyID := os.Getenv("E2E_PROPERTY_ID")
	seller := os.Getenv("E2E_SELLER_ID")
	if propertyID == "" || seller == "" {
		fmt.Println("  ⏭  skipped: E2E_PROPERTY_ID and E2E_SELLER_ID required")
		return
	}
	buyer := "e2e-buyer-" + uuid.NewString()[:8]
	req := map[string]string{
		"message":        "Can you ask the seller when the boiler was last serviced?",
		"user_id":        buyer,
		"property_id":    propertyID,
		"role":           "buyer",
		"counterpart_id": seller,
	}
	var offer chatResponse
	if _, err := call(http.MethodPost, "/api/v1/chat/property", "", req, &offer); err != nil {
		t.fatalf("ask: %v", err)
		return
	}
	t.check("offer mentions the seller", containsAny(offer.Response, "seller", "forward"))

	req["message"] = "yes"
	var confirm chatResponse
	if _, err := call(http.MethodPost, "/api/v1/chat/property", "", req, &confirm); err != nil {
		t.fatalf("confirm: %v", err)
		return
	}
	t.check("question forwarded", containsAny(confirm.Response, "sent", "forwarded", "passed"))

	var questions []struct {
		ID       int64  `json:"id"`
		Question string `json:"question_text"`
		Status   string `json:"status"`
	}
	sellerToken := serviceToken("seller", seller)
	status, err := call(http.MethodGet, "/api/v1/seller/questions/"+seller+"?status=pending", sellerToken, nil, &questions)
	if err != nil {
		t.fatalf("seller questions: %v", err)
		return
	}
	t.check("seller questions returns 200", status == http.StatusOK)
	var questionID int64
	for _, q := range questions {
		if containsAny(q.Question, "boiler") {
			questionID = q.ID
		}
	}
	t.check("question visible to seller", questionID > 0)
	if questionID == 0 {
		return
	}

	status, err = call(http.MethodPost, fmt.Sprintf("/api/v1/seller/questions/%d/answer", questionID), sellerToken,
		map[string]string{"answer": "Serviced in March this year."}, nil)
	if err != nil {
		t.fatalf("answer: %v", err)
		return
	}
	t.check("answer accepted", status == http.StatusOK)

	status, _ = call(http.MethodPost, fmt.Sprintf("/api/v1/seller/questions/%d/answer", questionID), sellerToken,
		map[string]string{"answer": "Again"}, nil)
	t.check("second answer conflicts", status == http.StatusConflict)

	var history historyResponse
	if _, err := call(http.MethodGet, fmt.Sprintf("/api/v1/conversations/property/%d/history", confirm.ConversationID), "", nil, &history); err != nil {
		t.fatalf("history: %v", err)
		return
	}
	found := false
	for _, m := range history.Messages {
		if containsAny(m.Content, "Serviced in March") {
			found = true
		}
	}
	t.check("answer delivered to buyer thread", found)
}

func scenarioAdminCleanup(t *T) {
	status, _ := call(http.MethodPost, "/admin/sessions/cleanup", "", nil, nil)
	t.check("cleanup requires token", status == http.StatusUnauthorized)

	var body struct {
		Deleted int64 `json:"deleted"`
	}
	status, err := call(http.MethodPost, "/admin/sessions/cleanup", serviceToken("admin", "e2e"), nil, &body)
	if err != nil {
		t.fatalf("cleanup: %v", err)
		return
	}
	t.check("cleanup returns 200", status == http.StatusOK)
	t.check("cleanup count non-negative", body.Deleted >= 0)
}

func main() {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	jwtSecret = os.Getenv("SERVICE_JWT_SECRET")
	if apiBase == "" || jwtSecret == "" {
		fmt.Fprintln(os.Stderr, "ERROR: API_BASE_URL and SERVICE_JWT_SECRET required")
		os.Exit(1)
	}

	scenarios := []scenario{
		{"health", scenarioHealth},
		{"greeting", scenarioGreeting},
		{"session-continuity", scenarioSessionContinuity},
		{"property-chat", scenarioPropertyChat},
		{"seller-relay", scenarioSellerRelay},
		{"admin-cleanup", scenarioAdminCleanup},
	}

	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed, totalFailed := 0, 0
	results := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}
		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name}
		s.Fn(t)

		totalPassed += t.passed
		totalFailed += t.failed
		status := "✅"
		if t.failed > 0 {
			status = "❌"
		}
		results = append(results, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Println("SUMMARY")
	fmt.Printf("========================================\n")
	for _, r := range results {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)
	if totalFailed > 0 {
		fmt.Println("\n❌ SOME TESTS FAILED")
		os.Exit(1)
	}
	fmt.Println("\n✅ ALL TESTS PASSED")
}

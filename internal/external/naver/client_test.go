package naver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/text/encoding/korean"

	"github.com/quantlab-kr/kscreener/pkg/config"
	"github.com/quantlab-kr/kscreener/pkg/logger"
)

func TestDecodeResponseUTF8(t *testing.T) {
	raw := []byte("<html><body>유보율 35,490.60</body></html>")

	got := decodeResponse(raw, "text/html; charset=utf-8")
	if !strings.Contains(got, "유보율") {
		t.Errorf("decoded = %q, want 유보율 present", got)
	}
}

func TestDecodeResponseEUCKR(t *testing.T) {
	plain := "<html><body>자본유보율 30,529.60</body></html>"
	raw, err := korean.EUCKR.NewEncoder().Bytes([]byte(plain))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	// charset 헤더가 없어도 EUC-KR 단계에서 복원돼야 한다
	got := decodeResponse(raw, "text/html")
	if !strings.Contains(got, "자본유보율") {
		t.Errorf("decoded = %q, want 자본유보율 present", got)
	}

	// 선언된 charset이 우선한다
	got = decodeResponse(raw, "text/html; charset=euc-kr")
	if !strings.Contains(got, "자본유보율") {
		t.Errorf("decoded with charset = %q, want 자본유보율 present", got)
	}
}

func TestDecodeResponseInvalidBytesFallBackToReplacement(t *testing.T) {
	raw := []byte{0xff, 0xfe, 0xfd, 'o', 'k'}

	got := decodeResponse(raw, "")
	if !strings.HasSuffix(got, "ok") {
		t.Errorf("decoded = %q, want ok suffix preserved", got)
	}
	if !strings.ContainsRune(got, '�') {
		t.Errorf("decoded = %q, want replacement characters for invalid bytes", got)
	}
}

func TestIsBlockedResponse(t *testing.T) {
	tests := []struct {
		name string
		html string
		want bool
	}{
		{"korean bot wall", "<html>비정상적인 접근이 감지되었습니다</html>", true},
		{"korean throttle", "<html>접근이 제한되었습니다</html>", true},
		{"english denial", "<html>Access Denied</html>", true},
		{"automation notice", "<html>자동화된 요청으로 판단되어 차단</html>", true},
		{"normal page", "<html>유보율 100.0</html>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBlockedResponse(tt.html); got != tt.want {
				t.Errorf("isBlockedResponse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFetchHTMLRetriesBlockedResponses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			fmt.Fprint(w, "<html>자동화된 요청</html>")
			return
		}
		fmt.Fprint(w, reservePage("77.7"))
	}))
	defer srv.Close()

	log := logger.New(&config.Config{Env: "development", LogLevel: "error", LogFormat: "json"})
	c := NewClient(config.NaverConfig{
		BaseURL:     srv.URL,
		ReferrerURL: srv.URL,
		Timeout:     time.Second,
		MaxRetries:  3,
		RetryDelay:  time.Millisecond,
		MaxWorkers:  1,
		RatePerSec:  1000,
	}, log)

	html, err := c.fetchHTML(context.Background(), "005930")
	if err != nil {
		t.Fatalf("fetchHTML() error = %v", err)
	}
	if !strings.Contains(html, "77.7") {
		t.Errorf("html = %q, want final page", html)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3", got)
	}
}

func TestFetchHTMLSendsBrowserHeaders(t *testing.T) {
	var gotReferer, gotLang, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		gotLang = r.Header.Get("Accept-Language")
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, reservePage("10.0"))
	}))
	defer srv.Close()

	log := logger.New(&config.Config{Env: "development", LogLevel: "error", LogFormat: "json"})
	c := NewClient(config.NaverConfig{
		BaseURL:     srv.URL,
		ReferrerURL: "https://finance.naver.com",
		Timeout:     time.Second,
		MaxRetries:  1,
		RetryDelay:  time.Millisecond,
		MaxWorkers:  1,
		RatePerSec:  1000,
	}, log)

	if _, err := c.fetchHTML(context.Background(), "035720"); err != nil {
		t.Fatalf("fetchHTML() error = %v", err)
	}

	if want := "https://finance.naver.com/item/main.naver?code=035720"; gotReferer != want {
		t.Errorf("Referer = %q, want %q", gotReferer, want)
	}
	if !strings.HasPrefix(gotLang, "ko-KR") {
		t.Errorf("Accept-Language = %q, want ko-KR preferred", gotLang)
	}
	if !strings.HasPrefix(gotUA, "Mozilla/5.0") {
		t.Errorf("User-Agent = %q, want browser-like", gotUA)
	}
}

package httputil_test

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/quantlab-kr/kscreener/pkg/config"
	"github.com/quantlab-kr/kscreener/pkg/httputil"
	"github.com/quantlab-kr/kscreener/pkg/logger"
)

// Example_basic demonstrates basic HTTP client usage
func Example_basic() {
	// Create config and logger
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}
	log := logger.New(cfg)

	// Create HTTP client (SSOT)
	client := httputil.New(log)

	// Make GET request
	ctx := context.Background()
	resp, err := client.Get(ctx, "https://finance.naver.com/sise/")
	if err != nil {
		fmt.Printf("Request failed: %v\n", err)
		return
	}
	defer resp.Body.Close()

	fmt.Printf("Status: %d\n", resp.StatusCode)
}

// Example_withRetry demonstrates retry configuration
func Example_withRetry() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}
	log := logger.New(cfg)

	// Create client with custom retry settings
	client := httputil.New(log).
		WithRetry(5, 2*time.Second) // 5 retries, 2s initial delay

	ctx := context.Background()
	resp, err := client.Get(ctx, "http://data.krx.co.kr")
	if err != nil {
		fmt.Printf("Request failed after retries: %v\n", err)
		return
	}
	defer resp.Body.Close()

	fmt.Println("Request succeeded")
}

// Example_postForm demonstrates form POST requests as used against the KRX data portal
func Example_postForm() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}
	log := logger.New(cfg)

	client := httputil.New(log)

	// KRX endpoints take url-encoded form parameters
	form := url.Values{}
	form.Set("bld", "dbms/MDC/STAT/standard/MDCSTAT01501")
	form.Set("mktId", "STK")
	form.Set("trdDd", "20250822")

	ctx := context.Background()
	resp, err := client.PostForm(ctx, "http://data.krx.co.kr/comm/bldAttendant/getJsonData.cmd", form)
	if err != nil {
		fmt.Printf("POST request failed: %v\n", err)
		return
	}
	defer resp.Body.Close()

	fmt.Printf("Status: %d\n", resp.StatusCode)
}

// Example_rateLimit demonstrates capping request rate for polite scraping
func Example_rateLimit() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}
	log := logger.New(cfg)

	// At most 10 requests per second, bursts of 2
	client := httputil.NewWithTimeout(log, 8*time.Second).
		DisableRetry().
		WithRateLimit(10, 2)

	ctx := context.Background()
	for _, ticker := range []string{"005930", "000660", "035720"} {
		resp, err := client.Get(ctx, "https://navercomp.wisereport.co.kr/v2/company/c1010001.aspx?cmp_cd="+ticker)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			continue
		}
		resp.Body.Close()
	}
}

// Example_timeout demonstrates custom timeout
func Example_timeout() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}
	log := logger.New(cfg)

	// Create client with 5 second timeout
	client := httputil.NewWithTimeout(log, 5*time.Second)

	ctx := context.Background()
	resp, err := client.Get(ctx, "http://data.krx.co.kr")
	if err != nil {
		fmt.Printf("Request timeout: %v\n", err)
		return
	}
	defer resp.Body.Close()

	fmt.Println("Request completed within timeout")
}

// Example_disableRetry demonstrates disabling retry
func Example_disableRetry() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}
	log := logger.New(cfg)

	// Create client without retry
	client := httputil.New(log).DisableRetry()

	ctx := context.Background()
	resp, err := client.Get(ctx, "https://finance.naver.com/sise/")
	if err != nil {
		fmt.Printf("Request failed (no retry): %v\n", err)
		return
	}
	defer resp.Body.Close()

	fmt.Println("Request succeeded on first attempt")
}

package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"StageSentinel/internal/model"
	"StageSentinel/internal/token"
)

const (
	kisDailyPath = "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice"
	kisPricePath = "/uapi/domestic-stock/v1/quotations/inquire-price"
	kisDailyTrID = "FHKST03010100"
	kisPriceTrID = "FHKST01010100"
	kisPageSize  = 100
	kisMaxPages  = 10
)

var errTokenExpired = errors.New("access token expired")

// kisLocation is the exchange's local time; KST has no daylight saving.
var kisLocation = time.FixedZone("KST", 9*60*60)

// TokenSource hands out bearer tokens; *token.Broker implements it.
type TokenSource interface {
	Acquire(ctx context.Context) (string, error)
	Invalidate()
}

var _ TokenSource = (*token.Broker)(nil)

// KISFetcher implements Fetcher using the brokerage REST quotations API.
type KISFetcher struct {
	BaseURL   string
	AppKey    string
	AppSecret string
	Tokens    TokenSource
	Client    *http.Client
	Limiter   *rate.Limiter
	Now       func() time.Time
}

// NewKISFetcher creates a fetcher with optional proxy support. Requests are
// paced to requestsPerSecond.
func NewKISFetcher(baseURL, appKey, appSecret string, tokens TokenSource, requestsPerSecond float64, proxyURL string) *KISFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 15
	}
	return &KISFetcher{
		BaseURL:   baseURL,
		AppKey:    appKey,
		AppSecret: appSecret,
		Tokens:    tokens,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		Limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

func (f *KISFetcher) Name() string { return "kis" }

type kisEnvelope struct {
	RtCd  string          `json:"rt_cd"`
	MsgCd string          `json:"msg_cd"`
	Msg1  string          `json:"msg1"`
	Out   json.RawMessage `json:"output"`
	Out2  json.RawMessage `json:"output2"`
}

type kisDailyRow struct {
	Date   string `json:"stck_bsop_date"`
	Close  string `json:"stck_clpr"`
	Open   string `json:"stck_oprc"`
	High   string `json:"stck_hgpr"`
	Low    string `json:"stck_lwpr"`
	Volume string `json:"acml_vol"`
}

type kisPrice struct {
	Price string `json:"stck_prpr"`
	High  string `json:"stck_hgpr"`
}

func (f *KISFetcher) FetchDailyCloses(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	seen := make(map[string]bool)
	var bars []model.Bar
	to := end
	for page := 0; page < kisMaxPages && !to.Before(start); page++ {
		q := url.Values{}
		q.Set("FID_COND_MRKT_DIV_CODE", "J")
		q.Set("FID_INPUT_ISCD", symbol)
		q.Set("FID_INPUT_DATE_1", start.Format("20060102"))
		q.Set("FID_INPUT_DATE_2", to.Format("20060102"))
		q.Set("FID_PERIOD_DIV_CODE", "D")
		q.Set("FID_ORG_ADJ_PRC", "0")

		env, err := f.get(ctx, kisDailyPath, kisDailyTrID, q)
		if err != nil {
			return nil, fmt.Errorf("fetch daily %s: %w", symbol, err)
		}
		var rows []kisDailyRow
		if len(env.Out2) > 0 {
			if err := json.Unmarshal(env.Out2, &rows); err != nil {
				return nil, fmt.Errorf("decode daily %s: %w", symbol, err)
			}
		}

		earliest := to
		added := 0
		for _, r := range rows {
			if r.Date == "" || seen[r.Date] {
				continue
			}
			day, err := time.ParseInLocation("20060102", r.Date, to.Location())
			if err != nil {
				continue
			}
			seen[r.Date] = true
			added++
			bars = append(bars, model.Bar{
				Time:   day,
				Open:   parseNum(r.Open),
				High:   parseNum(r.High),
				Low:    parseNum(r.Low),
				Close:  parseNum(r.Close),
				Volume: parseNum(r.Volume),
			})
			if day.Before(earliest) {
				earliest = day
			}
		}
		if len(rows) < kisPageSize || added == 0 {
			break
		}
		to = earliest.AddDate(0, 0, -1)
	}

	// Ensure chronological order
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func (f *KISFetcher) FetchLastPrice(ctx context.Context, symbol string) (model.Quote, error) {
	q := url.Values{}
	q.Set("FID_COND_MRKT_DIV_CODE", "J")
	q.Set("FID_INPUT_ISCD", symbol)

	env, err := f.get(ctx, kisPricePath, kisPriceTrID, q)
	if err != nil {
		return model.Quote{}, fmt.Errorf("fetch price %s: %w", symbol, err)
	}
	var p kisPrice
	if err := json.Unmarshal(env.Out, &p); err != nil {
		return model.Quote{}, fmt.Errorf("decode price %s: %w", symbol, err)
	}
	price := parseNum(p.Price)
	if price <= 0 {
		return model.Quote{}, fmt.Errorf("fetch price %s: no price in response", symbol)
	}
	return model.Quote{Symbol: symbol, Price: price, High: parseNum(p.High), AsOf: f.sessionTime(f.now())}, nil
}

// sessionTime maps now to the session the current price belongs to: on
// weekends that is Friday's close.
func (f *KISFetcher) sessionTime(now time.Time) time.Time {
	local := now.In(kisLocation)
	switch local.Weekday() {
	case time.Saturday:
		local = local.AddDate(0, 0, -1)
	case time.Sunday:
		local = local.AddDate(0, 0, -2)
	default:
		return now
	}
	return time.Date(local.Year(), local.Month(), local.Day(), 15, 30, 0, 0, kisLocation)
}

func (f *KISFetcher) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

// get performs one authorized GET, refreshing the token once if the provider
// reports it expired.
func (f *KISFetcher) get(ctx context.Context, path, trID string, q url.Values) (*kisEnvelope, error) {
	env, err := f.doGet(ctx, path, trID, q)
	if errors.Is(err, errTokenExpired) {
		f.Tokens.Invalidate()
		env, err = f.doGet(ctx, path, trID, q)
	}
	return env, err
}

func (f *KISFetcher) doGet(ctx context.Context, path, trID string, q url.Values) (*kisEnvelope, error) {
	if err := f.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	tok, err := f.Tokens.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("authorization", "Bearer "+tok)
	req.Header.Set("appkey", f.AppKey)
	req.Header.Set("appsecret", f.AppSecret)
	req.Header.Set("tr_id", trID)
	req.Header.Set("custtype", "P")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var env kisEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode == http.StatusUnauthorized || env.MsgCd == "EGW00123" {
		return nil, errTokenExpired
	}
	if resp.StatusCode != http.StatusOK || env.RtCd != "0" {
		return nil, fmt.Errorf("status %d, %s: %s", resp.StatusCode, env.MsgCd, env.Msg1)
	}
	return &env, nil
}

func parseNum(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

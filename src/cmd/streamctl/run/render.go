package run

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jiaming2012/option-chain-stream/src/eventmodels"
	"github.com/jiaming2012/option-chain-stream/src/eventservices"
)

// RenderMarketOpens lists the next n session opens after now with their UTC offset.
func RenderMarketOpens(now time.Time, session eventmodels.MarketSession, n int) string {
	display := new(strings.Builder)
	table := tablewriter.NewWriter(display)
	table.SetHeader([]string{"Date", "Open (exchange)", "Open (UTC)", "Offset", "Close (UTC)"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	at := now
	for i := 0; i < n; i++ {
		open := eventservices.NextMarketOpen(at, session)
		local := eventservices.ToExchangeTime(open)
		closeAt := eventservices.MarketCloseAfter(open, session)
		zone, offset := local.Zone()

		table.Append([]string{
			local.Format("Mon 2006-01-02"),
			fmt.Sprintf("%s %s", local.Format("15:04"), zone),
			open.UTC().Format("15:04"),
			fmt.Sprintf("%+dh", offset/3600),
			closeAt.UTC().Format("15:04"),
		})

		at = open.Add(time.Minute)
	}

	table.Render()
	return display.String()
}

func formatFloat(p *message.Printer, v *float64, format string) string {
	if v == nil {
		return "-"
	}

	return p.Sprintf(format, *v)
}

// RenderChain prints calls and puts side by side, one row per strike.
func RenderChain(chain *eventmodels.CachedOptionChain) string {
	p := message.NewPrinter(language.English)

	type row struct {
		call *eventmodels.TrackedContract
		put  *eventmodels.TrackedContract
	}

	rows := map[string]*row{}
	var strikes []eventmodels.TrackedContract

	get := func(c eventmodels.TrackedContract) *row {
		key := c.Strike.String()
		r, found := rows[key]
		if !found {
			r = &row{}
			rows[key] = r
			strikes = append(strikes, c)
		}

		return r
	}

	for i := range chain.Calls {
		get(chain.Calls[i]).call = &chain.Calls[i]
	}

	for i := range chain.Puts {
		get(chain.Puts[i]).put = &chain.Puts[i]
	}

	sort.Slice(strikes, func(i, j int) bool {
		return strikes[i].Strike.LessThan(strikes[j].Strike)
	})

	display := new(strings.Builder)
	display.WriteString(p.Sprintf("%s $%.2f (%s, updated %s)\n", chain.Symbol, chain.UnderlyingPrice, chain.DataSource, chain.LastUpdate.UTC().Format(time.RFC3339)))

	table := tablewriter.NewWriter(display)
	table.SetHeader([]string{"Call Bid", "Call Ask", "Call Delta", "Strike", "Put Bid", "Put Ask", "Put Delta"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, s := range strikes {
		r := rows[s.Strike.String()]
		cells := make([]string, 0, 7)

		if r.call != nil {
			cells = append(cells, formatFloat(p, r.call.Bid, "%.2f"), formatFloat(p, r.call.Ask, "%.2f"), formatFloat(p, r.call.Delta, "%.3f"))
		} else {
			cells = append(cells, "-", "-", "-")
		}

		cells = append(cells, s.Strike.String())

		if r.put != nil {
			cells = append(cells, formatFloat(p, r.put.Bid, "%.2f"), formatFloat(p, r.put.Ask, "%.2f"), formatFloat(p, r.put.Delta, "%.3f"))
		} else {
			cells = append(cells, "-", "-", "-")
		}

		table.Append(cells)
	}

	table.Render()
	return display.String()
}

func getJSON(url string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("getJSON: failed to create request: %w", err)
	}

	req.Header.Add("Accept", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("getJSON: request failed: %w", err)
	}

	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("getJSON: failed to read response body: %w", err)
	}

	if res.StatusCode == http.StatusNotFound {
		return eventmodels.ErrContractNotFound
	}

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("getJSON: invalid status code %s: %s", res.Status, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("getJSON: failed to decode json: %w", err)
	}

	return nil
}

func FetchChain(baseURL, symbol string) (*eventmodels.CachedOptionChain, error) {
	var chain eventmodels.CachedOptionChain
	if err := getJSON(fmt.Sprintf("%s/streaming/%s/chain", strings.TrimRight(baseURL, "/"), strings.ToUpper(symbol)), &chain); err != nil {
		return nil, fmt.Errorf("FetchChain: %w", err)
	}

	return &chain, nil
}

func FetchStatus(baseURL string) (*eventmodels.StreamingStatus, error) {
	var status eventmodels.StreamingStatus
	if err := getJSON(fmt.Sprintf("%s/streaming/status", strings.TrimRight(baseURL, "/")), &status); err != nil {
		return nil, fmt.Errorf("FetchStatus: %w", err)
	}

	return &status, nil
}

package symbols

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ScripMasterURL is where Angel One publishes the full instrument list.
const ScripMasterURL = "https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"

type scripEntry struct {
	Token    string `json:"token"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exch_seg"`
}

// LoadFile reads extra token mappings from path. A .json file is parsed as an
// Angel scrip master; anything else as a YAML map of SYMBOL: "token".
func LoadFile(path, exchange string) (map[string]Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return parseScripMaster(data, exchange)
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse symbols file: %w", err)
	}
	out := make(map[string]Token, len(raw))
	for sym, tok := range raw {
		out[sym] = Token(strings.TrimSpace(tok))
	}
	return out, nil
}

// FetchScripMaster downloads the scrip master and returns the mappings for
// one exchange segment.
func FetchScripMaster(ctx context.Context, client *http.Client, url, exchange string) (map[string]Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch scrip master: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrip master returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return parseScripMaster(body, exchange)
}

func parseScripMaster(data []byte, exchange string) (map[string]Token, error) {
	var entries []scripEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse scrip master: %w", err)
	}

	out := make(map[string]Token)
	for _, e := range entries {
		if e.Token == "" || e.Symbol == "" {
			continue
		}
		if exchange != "" && !strings.EqualFold(e.Exchange, exchange) {
			continue
		}
		out[e.Symbol] = Token(e.Token)
		// Cash equities are listed as NAME-EQ; callers use the bare name.
		if strings.HasSuffix(e.Symbol, "-EQ") && e.Name != "" {
			out[e.Name] = Token(e.Token)
		}
	}
	return out, nil
}

// Load builds the table used by the service: built-in tokens, then file (if
// set), then the scrip master at url (if set). Later sources win.
func Load(ctx context.Context, client *http.Client, file, url, exchange string) (*Table, error) {
	extra := make(map[string]Token)
	if file != "" {
		m, err := LoadFile(file, exchange)
		if err != nil {
			return nil, err
		}
		maps.Copy(extra, m)
	}
	if url != "" {
		m, err := FetchScripMaster(ctx, client, url, exchange)
		if err != nil {
			return nil, err
		}
		maps.Copy(extra, m)
	}
	return NewTable(extra), nil
}

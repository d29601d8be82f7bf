// Package provider models the external sports-data providers: their
// immutable configuration, request building, response decoding, and the
// ordered registry used for fallback.
package provider

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	feederrors "github.com/apexsports/feedgate/pkg/errors"
)

// DataType identifies a logical kind of sports data.
type DataType string

const (
	DataTypeGames  DataType = "games"
	DataTypeOdds   DataType = "odds"
	DataTypeScores DataType = "scores"
	DataTypeTeams  DataType = "teams"
)

// Game is one scheduled or completed game.
type Game struct {
	ID        string    `json:"id"`
	Sport     string    `json:"sport"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	StartTime time.Time `json:"start_time"`
	Status    string    `json:"status"`
	HomeScore int       `json:"home_score"`
	AwayScore int       `json:"away_score"`
}

// OddsLine is one betting line for a game.
type OddsLine struct {
	GameID        string    `json:"game_id"`
	HomeTeam      string    `json:"home_team"`
	AwayTeam      string    `json:"away_team"`
	HomeMoneyline *float64  `json:"home_ml,omitempty"`
	AwayMoneyline *float64  `json:"away_ml,omitempty"`
	Spread        *float64  `json:"spread,omitempty"`
	Total         *float64  `json:"total,omitempty"`
	Bookmaker     string    `json:"bookmaker"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// UnmarshalJSON accepts both numeric and string odds fields. API feeds carry
// plain numbers; scraped feeds carry book notation like "+150", "DAL -3.5"
// or "o224.5", which goes through the tolerant parsers.
func (o *OddsLine) UnmarshalJSON(data []byte) error {
	type Plain OddsLine
	aux := struct {
		*Plain
		HomeMoneyline json.RawMessage `json:"home_ml,omitempty"`
		AwayMoneyline json.RawMessage `json:"away_ml,omitempty"`
		Spread        json.RawMessage `json:"spread,omitempty"`
		Total         json.RawMessage `json:"total,omitempty"`
	}{Plain: (*Plain)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if o.HomeMoneyline, err = oddsValue(aux.HomeMoneyline, ParseMoneyline); err != nil {
		return err
	}
	if o.AwayMoneyline, err = oddsValue(aux.AwayMoneyline, ParseMoneyline); err != nil {
		return err
	}
	if o.Spread, err = oddsValue(aux.Spread, ParseSpread); err != nil {
		return err
	}
	if o.Total, err = oddsValue(aux.Total, ParseTotal); err != nil {
		return err
	}
	return nil
}

// oddsValue decodes one odds field: numbers pass through, strings go through
// the given parser, null and absent fields stay nil.
func oddsValue(raw json.RawMessage, parse func(string) *float64) (*float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return parse(s), nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// TeamRecord is a team's season record.
type TeamRecord struct {
	ID     string `json:"id"`
	Sport  string `json:"sport"`
	Name   string `json:"name"`
	Abbrev string `json:"abbrev"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
}

// Payload is a decoded provider response, tagged by data type. Exactly one
// of the slices is populated.
type Payload struct {
	Type   DataType     `json:"type"`
	Games  []Game       `json:"games,omitempty"`
	Odds   []OddsLine   `json:"odds,omitempty"`
	Teams  []TeamRecord `json:"teams,omitempty"`
	Scores []Game       `json:"scores,omitempty"`
}

// DecodePayload parses a provider response body into a typed payload.
// Parse failures surface as data_error so the recovery policy can return a
// default instead of propagating an untyped blob.
func DecodePayload(providerName string, dataType DataType, body []byte) (*Payload, error) {
	p := &Payload{Type: dataType}

	var err error
	switch dataType {
	case DataTypeGames:
		err = json.Unmarshal(body, &p.Games)
	case DataTypeOdds:
		err = json.Unmarshal(body, &p.Odds)
	case DataTypeTeams:
		err = json.Unmarshal(body, &p.Teams)
	case DataTypeScores:
		err = json.Unmarshal(body, &p.Scores)
	default:
		return nil, feederrors.NewValidationError(providerName, fmt.Sprintf("unsupported data type %q", dataType))
	}

	if err != nil {
		return nil, feederrors.NewDataError(providerName, "invalid json: "+err.Error())
	}
	return p, nil
}

// Empty returns the default payload for a data type, used when every
// provider is exhausted and the caller tolerates empty results.
func Empty(dataType DataType) *Payload {
	p := &Payload{Type: dataType}
	switch dataType {
	case DataTypeGames:
		p.Games = []Game{}
	case DataTypeOdds:
		p.Odds = []OddsLine{}
	case DataTypeTeams:
		p.Teams = []TeamRecord{}
	case DataTypeScores:
		p.Scores = []Game{}
	}
	return p
}

var (
	signedNumberRe = regexp.MustCompile(`[-+]?\d+\.?\d*`)
	numberRe       = regexp.MustCompile(`\d+\.?\d*`)
)

// ParseMoneyline parses a moneyline odds string ("+150", "-110") to a
// number. Returns nil for empty or placeholder values.
func ParseMoneyline(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return nil
	}
	cleaned := strings.ReplaceAll(s, "+", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseSpread extracts the signed numeric part of a spread string
// ("-3.5", "DAL -3.5").
func ParseSpread(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return nil
	}
	match := signedNumberRe.FindString(s)
	if match == "" {
		return nil
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseTotal extracts the numeric part of an over/under string
// ("o224.5", "224.5").
func ParseTotal(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return nil
	}
	match := numberRe.FindString(s)
	if match == "" {
		return nil
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return &v
}

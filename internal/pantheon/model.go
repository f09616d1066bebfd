package pantheon

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"
)

type Seat struct {
	PlayerName       string
	Score            int
	Place            int16
	StartingPosition int16
}

type Game struct {
	ID      int
	EndTime time.Time
	Seats   []Seat
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int64  `json:"id"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %v: %v", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      int64           `json:"id"`
}

type rawResult struct {
	Score int   `json:"score"`
	Place int16 `json:"place"`
}

type rawGame struct {
	ID           int                  `json:"id"`
	EndDate      string               `json:"end_date"`
	Players      []int                `json:"players"`
	FinalResults map[string]rawResult `json:"final_results"`
}

type rawPlayer struct {
	ID          int    `json:"id"`
	DisplayName string `json:"display_name"`
}

type lastGamesResult struct {
	Games   []rawGame            `json:"games"`
	Players map[string]rawPlayer `json:"players"`
	Total   int                  `json:"total_games"`
}

const dateLayout = "2006-01-02 15:04:05"

func (r *lastGamesResult) convert() ([]Game, error) {
	res := make([]Game, 0, len(r.Games))
	for _, g := range r.Games {
		end, err := time.ParseInLocation(dateLayout, g.EndDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("game %v: parse end date: %w", g.ID, err)
		}
		game := Game{
			ID:      g.ID,
			EndTime: end,
			Seats:   make([]Seat, 0, len(g.Players)),
		}
		for i, pid := range g.Players {
			key := strconv.Itoa(pid)
			p, ok := r.Players[key]
			if !ok {
				return nil, fmt.Errorf("game %v: unknown player %v", g.ID, pid)
			}
			fr, ok := g.FinalResults[key]
			if !ok {
				return nil, fmt.Errorf("game %v: no result for player %v", g.ID, pid)
			}
			game.Seats = append(game.Seats, Seat{
				PlayerName:       p.DisplayName,
				Score:            fr.Score,
				Place:            fr.Place,
				StartingPosition: int16(i + 1),
			})
		}
		res = append(res, game)
	}
	return res, nil
}

func sortGames(games []Game) {
	slices.SortStableFunc(games, func(a, b Game) int {
		if c := a.EndTime.Compare(b.EndTime); c != 0 {
			return c
		}
		return a.ID - b.ID
	})
}

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/finai-nexus/execution-core/internal/types"
)

const (
	minOrders  = 15
	maxOrders  = 150
	numWorkers = 5
	cancelRate = 0.1 // fraction of orders we try to cancel mid-flight
)

var (
	symbols = []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}
	sides   = []types.Side{types.SideBuy, types.SideSell}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	mu         sync.Mutex
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

func (rs *routeStats) addFailure() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient drives the execution API over HTTP
type simulationClient struct {
	baseURL string
	client  *http.Client
	stats   map[string]*routeStats
}

func newSimulationClient() *simulationClient {
	baseURL := os.Getenv("SERVER_ADDRESS")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &simulationClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"place":  {name: "Place Order"},
			"get":    {name: "Get Order"},
			"cancel": {name: "Cancel Order"},
			"venues": {name: "List Venues"},
		},
	}
}

type placedOrder struct {
	orderID  string
	clientID string
}

// placeOrder submits a new order to the API and returns its ID
func (sc *simulationClient) placeOrder(clientID string) (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["place"].addDuration(time.Since(start))
	}()

	request := map[string]interface{}{
		"client_id":    clientID,
		"portfolio_id": "PORT_" + clientID,
		"symbol":       symbols[rand.Intn(len(symbols))],
		"side":         sides[rand.Intn(len(sides))],
		"order_type":   "MARKET",
		"quantity":     fmt.Sprintf("%.4f", rand.Float64()*2+0.01),
	}

	body, err := json.Marshal(request)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest("POST", fmt.Sprintf("%s/api/v1/orders", sc.baseURL), bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	req.Header.Set("X-Client-ID", clientID)

	resp, err := sc.client.Do(req)
	if err != nil {
		sc.stats["place"].addFailure()
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats["place"].addFailure()
		return "", fmt.Errorf("place order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Order struct {
				OrderID string `json:"order_id"`
			} `json:"order"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	if result.Data.Order.OrderID == "" {
		return "", fmt.Errorf("no order ID in response: %s", string(respBody))
	}
	return result.Data.Order.OrderID, nil
}

// getOrder retrieves the current status of an order
func (sc *simulationClient) getOrder(orderID string) (*types.Order, error) {
	start := time.Now()
	defer func() {
		sc.stats["get"].addDuration(time.Since(start))
	}()

	resp, err := sc.client.Get(fmt.Sprintf("%s/api/v1/orders/%s", sc.baseURL, orderID))
	if err != nil {
		sc.stats["get"].addFailure()
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		sc.stats["get"].addFailure()
		return nil, fmt.Errorf("get order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool        `json:"success"`
		Data    types.Order `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return &result.Data, nil
}

// cancelOrder asks the API to cancel a working order
func (sc *simulationClient) cancelOrder(orderID, clientID string) error {
	start := time.Now()
	defer func() {
		sc.stats["cancel"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest("DELETE", fmt.Sprintf("%s/api/v1/orders/%s", sc.baseURL, orderID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Client-ID", clientID)

	resp, err := sc.client.Do(req)
	if err != nil {
		sc.stats["cancel"].addFailure()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		sc.stats["cancel"].addFailure()
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cancel order failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main drives a randomized order flow against a running execution server:
// concurrent placements, opportunistic cancels, then status polling until
// every order reaches a terminal state or the deadline passes.
func main() {
	simClient := newSimulationClient()

	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")

	ordersChan := make(chan placedOrder, targetOrders)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			clientID := fmt.Sprintf("CLIENT_%d", workerID)
			for j := 0; j < targetOrders/numWorkers; j++ {
				orderID, err := simClient.placeOrder(clientID)
				if err != nil {
					log.Error().Err(err).Int("worker", workerID).Msg("Failed to place order")
					continue
				}
				ordersChan <- placedOrder{orderID: orderID, clientID: clientID}

				if rand.Float64() < cancelRate {
					if err := simClient.cancelOrder(orderID, clientID); err != nil {
						log.Debug().Err(err).Str("order_id", orderID).Msg("Cancel attempt declined")
					}
				}
			}
		}(i)
	}

	wg.Wait()
	close(ordersChan)

	var placed []placedOrder
	for o := range ordersChan {
		placed = append(placed, o)
	}
	log.Info().Int("orders_placed", len(placed)).Msg("All orders placed")

	// Poll until everything terminal or deadline.
	statusCounts := make(map[types.OrderStatus]int)
	deadline := time.Now().Add(2 * time.Minute)
	pending := placed
	for len(pending) > 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Second)
		var stillPending []placedOrder
		for _, p := range pending {
			order, err := simClient.getOrder(p.orderID)
			if err != nil {
				log.Error().Err(err).Str("order_id", p.orderID).Msg("Failed to get order")
				continue
			}
			if order.Status.IsTerminal() {
				statusCounts[order.Status]++
			} else {
				stillPending = append(stillPending, p)
			}
		}
		pending = stillPending
		log.Info().Int("remaining", len(pending)).Msg("Waiting for orders to complete")
	}
	for range pending {
		statusCounts["STUCK"]++
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("EXECUTION SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Total Orders: %d\n", len(placed))
	for status, count := range statusCounts {
		barLength := int(float64(count) / float64(len(placed)) * 40)
		fmt.Printf("%-18s: %s (%d)\n", status, strings.Repeat("#", barLength), count)
	}
	fmt.Println(strings.Repeat("=", 80))

	simClient.printPerformanceStats()
}

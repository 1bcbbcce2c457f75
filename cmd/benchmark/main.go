// Benchmark tool for measuring radiowatch detection quality against a
// synthetic, labelled fleet of networks.
//
// Usage:
//
//	go run ./cmd/benchmark -url http://localhost:8080 -networks 500 -trackers 0.1
//
// This tool:
//  1. Configures a home location
//  2. Generates trackers (follow the user between home and away) and
//     benign networks (stationary at home, or stationary elsewhere)
//  3. Ingests every observation and runs a synchronous recompute
//  4. Reads each score back and compares HIGH/CRITICAL verdicts with labels
//  5. Prints precision, recall, F1-score and a confusion matrix
package main

import (
	"bytes"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	homeLat = 40.0
	homeLon = -105.0
	hourMs  = int64(time.Hour / time.Millisecond)
	batch   = 2000
)

// Profile is the ground-truth behaviour of a generated network.
type Profile string

const (
	ProfileTracker    Profile = "tracker"
	ProfileStationary Profile = "stationary"
	ProfileNeighbour  Profile = "neighbour"
)

// Network is one generated network with its label.
type Network struct {
	ID           string
	Profile      Profile
	Observations []Observation
}

// Observation matches the ingest payload.
type Observation struct {
	NetworkID   string  `json:"networkId"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	TimestampMs int64   `json:"timestampMs"`
	RadioType   string  `json:"radioType"`
	SSID        string  `json:"ssid"`
}

// ScoreResponse is the part of a score record the benchmark reads.
type ScoreResponse struct {
	NetworkID  string  `json:"networkId"`
	FinalScore float64 `json:"finalScore"`
	FinalLevel string  `json:"finalLevel"`
	ThreatType string  `json:"threatType"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	TotalThreats   int64
	TotalBenign    int64
	TotalErrors    int64

	TruePositives  int64
	FalsePositives int64
	TrueNegatives  int64
	FalseNegatives int64

	ProcessingTimeMs int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "radiowatch API URL")
	count := flag.Int("networks", 500, "Number of networks to generate")
	trackerRate := flag.Float64("trackers", 0.1, "Fraction of networks that are trackers")
	days := flag.Int("days", 8, "Days of observations per network")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Uint64("seed", 1, "Random seed")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	fmt.Printf("radiowatch Benchmark\n")
	fmt.Printf("====================\n")
	fmt.Printf("URL:      %s\n", *baseURL)
	fmt.Printf("Networks: %d (tracker rate %.2f)\n", *count, *trackerRate)
	fmt.Printf("Workers:  %d\n\n", *workers)

	client := &http.Client{Timeout: 60 * time.Second}

	if err := checkHealth(client, *baseURL); err != nil {
		fmt.Printf("ERROR: radiowatch not healthy: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ radiowatch is healthy")

	if err := put(client, *baseURL+"/home", map[string]float64{"lat": homeLat, "lon": homeLon, "radiusM": 100}); err != nil {
		fmt.Printf("ERROR: failed to set home: %v\n", err)
		os.Exit(1)
	}

	networks := generateFleet(rand.New(rand.NewPCG(*seed, *seed)), *count, *trackerRate, *days)
	observations := 0
	for _, n := range networks {
		observations += len(n.Observations)
	}
	fmt.Printf("✓ Generated %d networks with %d observations\n", len(networks), observations)

	startTime := time.Now()

	if err := ingest(client, *baseURL, networks); err != nil {
		fmt.Printf("ERROR: ingest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Ingested in %v\n", time.Since(startTime).Round(time.Millisecond))

	ids := make([]string, len(networks))
	for i, n := range networks {
		ids[i] = n.ID
	}
	recomputeStart := time.Now()
	if err := post(client, *baseURL+"/scores/recompute", map[string]any{"networkIds": ids}, nil); err != nil {
		fmt.Printf("ERROR: recompute failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Recomputed in %v\n", time.Since(recomputeStart).Round(time.Millisecond))

	fmt.Printf("\nReading scores with %d workers...\n", *workers)
	metrics := runBenchmark(client, networks, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generateFleet builds count labelled networks. Trackers alternate between
// home and a spot 2km north every hour; stationary networks sit at home;
// neighbours sit a few km away and are only seen there.
func generateFleet(rng *rand.Rand, count int, trackerRate float64, days int) []Network {
	start := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC).UnixMilli()
	networks := make([]Network, 0, count)

	for i := 0; i < count; i++ {
		n := Network{ID: networkID()}
		switch {
		case rng.Float64() < trackerRate:
			n.Profile = ProfileTracker
		case rng.IntN(2) == 0:
			n.Profile = ProfileStationary
		default:
			n.Profile = ProfileNeighbour
		}

		offsetLat := 0.01 + rng.Float64()*0.04
		for d := 0; d < days; d++ {
			for h := 0; h < 8; h++ {
				lat, lon := homeLat, homeLon
				switch n.Profile {
				case ProfileTracker:
					if h%2 == 1 {
						lat = homeLat + 0.018
					}
				case ProfileStationary:
					lat += jitter(rng)
					lon += jitter(rng)
				case ProfileNeighbour:
					lat += offsetLat + jitter(rng)
					lon += jitter(rng)
				}
				n.Observations = append(n.Observations, Observation{
					NetworkID:   n.ID,
					Lat:         lat,
					Lon:         lon,
					TimestampMs: start + int64(d)*24*hourMs + int64(h)*hourMs,
					RadioType:   "WIFI",
					SSID:        string(n.Profile),
				})
			}
		}
		networks = append(networks, n)
	}
	return networks
}

// jitter keeps a stationary network within one grid cell.
func jitter(rng *rand.Rand) float64 {
	return (rng.Float64() - 0.5) * 0.0002
}

// networkID derives a MAC-shaped identifier from a random UUID.
func networkID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	parts := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		parts = append(parts, strings.ToUpper(raw[i:i+2]))
	}
	return strings.Join(parts, ":")
}

func ingest(client *http.Client, baseURL string, networks []Network) error {
	var pending []Observation
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		err := post(client, baseURL+"/observations", map[string]any{"observations": pending}, nil)
		pending = pending[:0]
		return err
	}
	for _, n := range networks {
		for _, o := range n.Observations {
			pending = append(pending, o)
			if len(pending) == batch {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

func runBenchmark(client *http.Client, networks []Network, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan Network, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for n := range work {
				start := time.Now()
				result, err := fetchScore(client, baseURL, n.ID)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", n.ID, err)
					}
					continue
				}

				actual := n.Profile == ProfileTracker
				if actual {
					atomic.AddInt64(&metrics.TotalThreats, 1)
				} else {
					atomic.AddInt64(&metrics.TotalBenign, 1)
				}

				predicted := result.FinalLevel == "HIGH" || result.FinalLevel == "CRITICAL"

				switch {
				case predicted && actual:
					atomic.AddInt64(&metrics.TruePositives, 1)
				case predicted && !actual:
					atomic.AddInt64(&metrics.FalsePositives, 1)
				case !predicted && !actual:
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				default:
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if predicted != actual {
						status = "✗"
					}
					fmt.Printf("%s %s | Profile: %-10s | Level: %-8s (%.1f) | Type: %s\n",
						status,
						n.ID,
						n.Profile,
						result.FinalLevel,
						result.FinalScore,
						result.ThreatType,
					)
				}
			}
		}()
	}

	for _, n := range networks {
		work <- n
	}
	close(work)

	wg.Wait()

	return metrics
}

func fetchScore(client *http.Client, baseURL, id string) (*ScoreResponse, error) {
	resp, err := client.Get(baseURL + "/networks/" + id + "/score")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func post(client *http.Client, url string, body, out any) error {
	return send(client, http.MethodPost, url, body, out)
}

func put(client *http.Client, url string, body any) error {
	return send(client, http.MethodPut, url, body, nil)
}

func send(client *http.Client, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 FLEET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Trackers:         %d\n", m.TotalThreats)
	fmt.Printf("   Benign:           %d\n", m.TotalBenign)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                  HIGH+        below")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  T  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           B  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of alerts, how many were trackers)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of trackers, how many were flagged)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalThreats > 0 {
		fmt.Printf("   Trackers Flagged:  %d / %d (%.2f%%)\n", m.TruePositives, m.TotalThreats, float64(m.TruePositives)/float64(m.TotalThreats)*100)
		fmt.Printf("   Trackers Missed:   %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalThreats, float64(m.FalseNegatives)/float64(m.TotalThreats)*100)
	}
	if m.TotalBenign > 0 {
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalBenign, float64(m.FalsePositives)/float64(m.TotalBenign)*100)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		fmt.Printf("   Avg Read Latency: %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f networks/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	switch {
	case recall >= 0.9:
		fmt.Println("   ✅ Excellent recall - catching most trackers")
	case recall >= 0.7:
		fmt.Println("   ⚠️  Good recall - but missing some trackers")
	default:
		fmt.Println("   ❌ Poor recall - trackers are being missed")
	}
	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - alerts are meaningful")
	} else {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	}

	fmt.Println()
}

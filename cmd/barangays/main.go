// Package main выгружает барангаи провинции из PSGC API в JSON для встраивания в сервис.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
	"github.com/maxxi02/thesis-project01-sub001/internal/push"
)

const defaultAPI = "https://psgc.gitlab.io/api"

// code — код PSGC. API отдаёт false вместо отсутствующего кода.
type code string

func (c *code) UnmarshalJSON(b []byte) error {
	if string(b) == "false" || string(b) == "null" {
		*c = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*c = code(s)
	return nil
}

type psgcProvince struct {
	Code code   `json:"code"`
	Name string `json:"name"`
}

type psgcMunicipality struct {
	Code code   `json:"code"`
	Name string `json:"name"`
}

type psgcBarangay struct {
	Code             code   `json:"code"`
	Code10           code   `json:"psgc10DigitCode"`
	Name             string `json:"name"`
	CityCode         code   `json:"cityCode"`
	MunicipalityCode code   `json:"municipalityCode"`
}

func (b psgcBarangay) id() string {
	if b.Code10 != "" {
		return string(b.Code10)
	}
	return string(b.Code)
}

func (b psgcBarangay) parent() code {
	if b.MunicipalityCode != "" {
		return b.MunicipalityCode
	}
	return b.CityCode
}

type point struct {
	lat, lng float64
}

type client struct {
	base string
	http *retryablehttp.Client
}

func newClient(base string, logger *zap.Logger) *client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 5
	rc.HTTPClient.Timeout = 30 * time.Second
	rc.Logger = push.LeveledLogger{SugaredLogger: logger.Sugar()}
	return &client{base: strings.TrimRight(base, "/"), http: rc}
}

func (c *client) get(ctx context.Context, path string, dst any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// readCoords читает CSV вида code,lat,lng. Строка заголовка пропускается.
func readCoords(r io.Reader) (map[string]point, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	res := make(map[string]point)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read coords: %w", err)
		}
		lat, errLat := strconv.ParseFloat(rec[1], 64)
		lng, errLng := strconv.ParseFloat(rec[2], 64)
		if errLat != nil || errLng != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("read coords: line %d: invalid coordinates", line)
		}
		res[strings.TrimSpace(rec[0])] = point{lat: lat, lng: lng}
	}
}

// build собирает список барангаев с координатами. Барангаи без координат возвращаются отдельно.
func build(province psgcProvince, municipalities []psgcMunicipality, barangays []psgcBarangay, coords map[string]point) ([]model.Location, []string) {
	names := make(map[code]string, len(municipalities))
	for _, m := range municipalities {
		names[m.Code] = m.Name
	}

	var (
		locs    []model.Location
		missing []string
	)
	for _, b := range barangays {
		p, ok := coords[b.id()]
		if !ok {
			p, ok = coords[string(b.Code)]
		}
		if !ok {
			missing = append(missing, b.id())
			continue
		}
		municipality := names[b.parent()]
		locs = append(locs, model.Location{
			ID:           b.id(),
			Name:         b.Name,
			Municipality: municipality,
			Province:     province.Name,
			FullAddress:  strings.Join([]string{b.Name, municipality, province.Name}, ", "),
			Latitude:     p.lat,
			Longitude:    p.lng,
		})
	}

	slices.SortFunc(locs, func(a, b model.Location) int { return strings.Compare(a.ID, b.ID) })
	return locs, missing
}

func run(ctx context.Context, logger *zap.Logger, api, provinceCode, coordsPath, out string) error {
	if provinceCode == "" {
		return errors.New("province code is required")
	}

	coords := map[string]point{}
	if coordsPath != "" {
		f, err := os.Open(coordsPath)
		if err != nil {
			return fmt.Errorf("open coords: %w", err)
		}
		coords, err = readCoords(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	c := newClient(api, logger)

	var province psgcProvince
	if err := c.get(ctx, "/provinces/"+provinceCode+"/", &province); err != nil {
		return err
	}
	var municipalities []psgcMunicipality
	if err := c.get(ctx, "/provinces/"+provinceCode+"/cities-municipalities/", &municipalities); err != nil {
		return err
	}
	var barangays []psgcBarangay
	if err := c.get(ctx, "/provinces/"+provinceCode+"/barangays/", &barangays); err != nil {
		return err
	}

	locs, missing := build(province, municipalities, barangays, coords)
	if len(missing) > 0 {
		logger.Warn("barangays without coordinates skipped", zap.Int("count", len(missing)))
	}

	data, err := json.MarshalIndent(locs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode locations: %w", err)
	}
	if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	logger.Info("barangays written",
		zap.String("province", province.Name),
		zap.Int("count", len(locs)),
		zap.String("out", out),
	)
	return nil
}

func main() {
	var (
		api      = flag.String("api", defaultAPI, "PSGC API base URL")
		province = flag.String("province", "", "PSGC province code, e.g. 175200000")
		coords   = flag.String("coords", "", "CSV file with code,lat,lng rows")
		out      = flag.String("out", "internal/location/barangays.json", "output file")
	)
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *api, *province, *coords, *out); err != nil {
		logger.Fatal("generation failed", zap.Error(err))
	}
}

package rates

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// List of services used as BTC/USD price sources
const (
	binance string = "Binance"
	okx     string = "OKX"
)

// Source is one BTC price ticker endpoint together with its response decoder.
type Source struct {
	Name string
	URL  string
	// Converter for extracting the BTC price from the ticker response
	PriceConverter func(closer io.ReadCloser) (float64, error)
}

func BinanceSource(url string) Source {
	return Source{Name: binance, URL: url, PriceConverter: convertedBinanceResponse}
}

func OKXSource(url string) Source {
	return Source{Name: okx, URL: url, PriceConverter: convertedOKXResponse}
}

func convertedBinanceResponse(respBody io.ReadCloser) (float64, error) {
	defer respBody.Close()
	var data struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(respBody).Decode(&data); err != nil {
		return 0, fmt.Errorf("[convertedBinanceResponse] failed to decode response: %v", err)
	}
	price, err := strconv.ParseFloat(data.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("[convertedBinanceResponse] failed to parse price: %v", err)
	}
	if price == 0 {
		return 0, fmt.Errorf("[convertedBinanceResponse] empty price")
	}
	return price, nil
}

func convertedOKXResponse(respBody io.ReadCloser) (float64, error) {
	defer respBody.Close()
	var data struct {
		Code string `json:"code"`
		Data []struct {
			Last string `json:"last"`
		} `json:"data"`
	}
	if err := json.NewDecoder(respBody).Decode(&data); err != nil {
		return 0, fmt.Errorf("[convertedOKXResponse] failed to decode response: %v", err)
	}
	if data.Code != "0" {
		return 0, fmt.Errorf("[convertedOKXResponse] unsuccessful response")
	}
	if len(data.Data) == 0 {
		return 0, fmt.Errorf("[convertedOKXResponse] empty data")
	}
	price, err := strconv.ParseFloat(data.Data[0].Last, 64)
	if err != nil {
		return 0, fmt.Errorf("[convertedOKXResponse] failed to parse price: %v", err)
	}
	return price, nil
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// Note: the converter owns resp.Body; it is closed here ONLY on a bad status code
func sendRequest(url string) (io.ReadCloser, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var errRespBody string
		if respBody, err := io.ReadAll(resp.Body); err == nil {
			errRespBody = string(respBody)
		}
		resp.Body.Close()
		return nil, fmt.Errorf("bad status code: %v %v %v", resp.StatusCode, url, errRespBody)
	}
	return resp.Body, nil
}

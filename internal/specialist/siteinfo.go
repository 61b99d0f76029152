package specialist

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed data/siteinfo.json
var siteInfoJSON []byte

type feature struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type siteInfo struct {
	Features map[string]feature `json:"website_features"`
	Company  map[string]string  `json:"company"`
}

func loadSiteInfo() (siteInfo, error) {
	var info siteInfo
	if err := json.Unmarshal(siteInfoJSON, &info); err != nil {
		return siteInfo{}, fmt.Errorf("specialist: decode site info: %w", err)
	}
	return info, nil
}

func (s siteInfo) featuresJSON() string {
	data, _ := json.MarshalIndent(s.Features, "", "  ")
	return string(data)
}

func (s siteInfo) companyJSON() string {
	data, _ := json.MarshalIndent(s.Company, "", "  ")
	return string(data)
}

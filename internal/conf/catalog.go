package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
)

// LoadCatalog loads the category catalog from YAML file
func LoadCatalog(configPath string) (*domain.Catalog, error) {
	// Try multiple paths
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/catalog.yaml",
			"/etc/feishu-market-bot/catalog.yaml",
		}
		// Add path relative to executable
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "catalog.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	var err error

	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			loadedPath = p
			break
		}
	}

	if data == nil {
		if configPath != "" {
			return nil, &ConfigError{Field: "CATALOG_PATH", Message: fmt.Sprintf("cannot read %s", configPath)}
		}
		log.Debug().Msg("no catalog.yaml found, using defaults")
		return DefaultCatalog(), nil
	}

	log.Info().Str("path", loadedPath).Msg("loading catalog")

	var catalog domain.Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog.yaml: %w", err)
	}

	fillDefaults(&catalog)

	return &catalog, nil
}

// fillDefaults fills in default values for empty fields
func fillDefaults(c *domain.Catalog) {
	defaults := DefaultCatalog()

	if len(c.Categories) == 0 {
		c.Categories = defaults.Categories
	}
	if c.Currency == "" {
		c.Currency = defaults.Currency
	}
	if c.PageSize <= 0 {
		c.PageSize = defaults.PageSize
	}
}

// DefaultCatalog returns the built-in categories
func DefaultCatalog() *domain.Catalog {
	return &domain.Catalog{
		Categories: []domain.Category{
			{Tag: "#Electronics", Subcategories: []string{"#Phones", "#Computers", "#TVs", "#Accessories"}},
			{Tag: "#Clothing", Subcategories: []string{"#Men", "#Women", "#Children", "#Shoes"}},
			{Tag: "#Home", Subcategories: []string{"#Furniture", "#Kitchen", "#Decor", "#Appliances"}},
			{Tag: "#Beauty", Subcategories: []string{"#Makeup", "#Skincare", "#Haircare", "#Fragrance"}},
			{Tag: "#Sports", Subcategories: []string{"#Equipment", "#Clothing", "#Shoes", "#Accessories"}},
			{Tag: "#Vehicles", Subcategories: []string{"#Cars", "#Motorcycles", "#Parts", "#Rentals"}},
			{Tag: "#Services", Subcategories: []string{"#Cleaning", "#Repair", "#Education", "#Health"}},
			{Tag: "#Jobs", Subcategories: []string{"#FullTime", "#PartTime", "#Remote", "#Internship"}},
			{Tag: "#RealEstate", Subcategories: []string{"#Apartments", "#Houses", "#Land", "#Commercial"}},
			{Tag: "#Other", Subcategories: []string{"#Miscellaneous"}},
		},
		Currency: "ETB",
		PageSize: 3,
	}
}

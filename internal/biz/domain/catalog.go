package domain

// Category is a top-level tag with its suggested subcategories
type Category struct {
	Tag           string   `yaml:"tag" json:"tag"`
	Subcategories []string `yaml:"subcategories" json:"subcategories"`
}

// Catalog is the ordered category menu shown during listing creation
type Catalog struct {
	Categories []Category `yaml:"categories"`
	Currency   string     `yaml:"currency"`
	PageSize   int        `yaml:"page_size"`
}

// Find returns the category with the given tag
func (c *Catalog) Find(tag string) (*Category, bool) {
	for i := range c.Categories {
		if c.Categories[i].Tag == tag {
			return &c.Categories[i], true
		}
	}
	return nil, false
}

// HasSubcategory reports whether sub is listed under category
func (c *Catalog) HasSubcategory(category, sub string) bool {
	cat, ok := c.Find(category)
	if !ok {
		return false
	}
	for _, s := range cat.Subcategories {
		if s == sub {
			return true
		}
	}
	return false
}

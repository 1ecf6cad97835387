package normalize

// Selectors locates product fields on a rendered product page.
type Selectors struct {
	BrandAndTitle string `mapstructure:"brand_and_title"`
	Price         string `mapstructure:"price"`
	AttributeItem string `mapstructure:"attribute_item"`
	MainImage     string `mapstructure:"main_image"`
	GalleryImage  string `mapstructure:"gallery_image"`
	Description   string `mapstructure:"description"`
}

// DefaultSelectors returns the selectors used by the catalog's product page.
func DefaultSelectors() Selectors {
	return Selectors{
		BrandAndTitle: ".pr-new-br",
		Price:         ".prc-dsc",
		AttributeItem: ".detail-attr-container li",
		MainImage:     ".base-product-image img",
		GalleryImage:  ".styles-module_slider__o0fqa img",
		Description:   ".detail-desc-list",
	}
}

func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	if s.BrandAndTitle == "" {
		s.BrandAndTitle = d.BrandAndTitle
	}
	if s.Price == "" {
		s.Price = d.Price
	}
	if s.AttributeItem == "" {
		s.AttributeItem = d.AttributeItem
	}
	if s.MainImage == "" {
		s.MainImage = d.MainImage
	}
	if s.GalleryImage == "" {
		s.GalleryImage = d.GalleryImage
	}
	if s.Description == "" {
		s.Description = d.Description
	}
	return s
}

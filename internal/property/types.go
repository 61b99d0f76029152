package property

import (
	"fmt"
	"strings"
)

type Address struct {
	HouseNumber string  `json:"house_number,omitempty"`
	Street      string  `json:"street,omitempty"`
	City        string  `json:"city,omitempty"`
	Postcode    string  `json:"postcode,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
}

type Specs struct {
	Bedrooms       int     `json:"bedrooms,omitempty"`
	Bathrooms      int     `json:"bathrooms,omitempty"`
	ReceptionRooms int     `json:"reception_rooms,omitempty"`
	SquareFootage  float64 `json:"square_footage,omitempty"`
	PropertyType   string  `json:"property_type,omitempty"`
	EPCRating      string  `json:"epc_rating,omitempty"`
}

type Details struct {
	Description      string `json:"description,omitempty"`
	PropertyType     string `json:"property_type,omitempty"`
	ConstructionYear int    `json:"construction_year,omitempty"`
	ParkingSpaces    int    `json:"parking_spaces,omitempty"`
	HeatingType      string `json:"heating_type,omitempty"`
}

type Features struct {
	HasGarden     bool    `json:"has_garden,omitempty"`
	GardenSize    float64 `json:"garden_size,omitempty"`
	HasGarage     bool    `json:"has_garage,omitempty"`
	ParkingSpaces int     `json:"parking_spaces,omitempty"`
}

// Listing is a property record from the listings API.
type Listing struct {
	PropertyID   string    `json:"property_id"`
	Price        int       `json:"price"`
	Bedrooms     int       `json:"bedrooms,omitempty"`
	Bathrooms    int       `json:"bathrooms,omitempty"`
	MainImageURL string    `json:"main_image_url,omitempty"`
	SellerID     string    `json:"seller_id,omitempty"`
	Status       string    `json:"status,omitempty"`
	CreatedAt    string    `json:"created_at,omitempty"`
	Address      *Address  `json:"address,omitempty"`
	Specs        *Specs    `json:"specs,omitempty"`
	Details      *Details  `json:"details,omitempty"`
	Features     *Features `json:"features,omitempty"`
}

// City returns the listing's city, or "" when no address is known.
func (l Listing) City() string {
	if l.Address == nil {
		return ""
	}
	return l.Address.City
}

// Summary renders the listing as plain text for prompts.
func (l Listing) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Property %s\n", l.PropertyID)
	if l.Price > 0 {
		fmt.Fprintf(&b, "Asking price: £%d\n", l.Price)
	}
	if l.Address != nil {
		parts := []string{}
		for _, p := range []string{strings.TrimSpace(l.Address.HouseNumber + " " + l.Address.Street), l.Address.City, l.Address.Postcode} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, "Address: %s\n", strings.Join(parts, ", "))
		}
	}
	bedrooms, bathrooms := l.Bedrooms, l.Bathrooms
	if l.Specs != nil {
		if l.Specs.Bedrooms > 0 {
			bedrooms = l.Specs.Bedrooms
		}
		if l.Specs.Bathrooms > 0 {
			bathrooms = l.Specs.Bathrooms
		}
		if l.Specs.PropertyType != "" {
			fmt.Fprintf(&b, "Type: %s\n", l.Specs.PropertyType)
		}
		if l.Specs.SquareFootage > 0 {
			fmt.Fprintf(&b, "Size: %.0f sq ft\n", l.Specs.SquareFootage)
		}
		if l.Specs.EPCRating != "" {
			fmt.Fprintf(&b, "EPC rating: %s\n", l.Specs.EPCRating)
		}
	}
	if bedrooms > 0 {
		fmt.Fprintf(&b, "Bedrooms: %d\n", bedrooms)
	}
	if bathrooms > 0 {
		fmt.Fprintf(&b, "Bathrooms: %d\n", bathrooms)
	}
	if l.Details != nil {
		if l.Details.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", l.Details.Description)
		}
		if l.Details.ConstructionYear > 0 {
			fmt.Fprintf(&b, "Built: %d\n", l.Details.ConstructionYear)
		}
		if l.Details.HeatingType != "" {
			fmt.Fprintf(&b, "Heating: %s\n", l.Details.HeatingType)
		}
	}
	if l.Features != nil {
		fmt.Fprintf(&b, "Garden: %t\n", l.Features.HasGarden)
		fmt.Fprintf(&b, "Garage: %t\n", l.Features.HasGarage)
		if l.Features.ParkingSpaces > 0 {
			fmt.Fprintf(&b, "Parking spaces: %d\n", l.Features.ParkingSpaces)
		}
	}
	if l.Status != "" {
		fmt.Fprintf(&b, "Status: %s\n", l.Status)
	}
	return strings.TrimSpace(b.String())
}

type UserInfo struct {
	UserID      string `json:"user_id"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// DisplayName joins first and last name.
func (u UserInfo) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type SavedProperty struct {
	PropertyID string `json:"property_id"`
	Price      int    `json:"price"`
	SavedAt    string `json:"saved_at,omitempty"`
	Notes      string `json:"notes,omitempty"`
	Status     string `json:"status,omitempty"`
}

// UserDashboard is a user's profile plus saved and listed properties.
type UserDashboard struct {
	User             UserInfo        `json:"user"`
	SavedProperties  []SavedProperty `json:"saved_properties"`
	ListedProperties []Listing       `json:"listed_properties"`
}

// SearchCriteria filters listings client-side.
type SearchCriteria struct {
	City        string
	MinBedrooms int
	MaxPrice    int
	Limit       int
}

// Filter returns the listings matching c, preserving order.
func Filter(listings []Listing, c SearchCriteria) []Listing {
	out := make([]Listing, 0, len(listings))
	for _, l := range listings {
		if c.City != "" && !strings.EqualFold(l.City(), c.City) {
			continue
		}
		beds := l.Bedrooms
		if l.Specs != nil && l.Specs.Bedrooms > 0 {
			beds = l.Specs.Bedrooms
		}
		if c.MinBedrooms > 0 && beds < c.MinBedrooms {
			continue
		}
		if c.MaxPrice > 0 && l.Price > c.MaxPrice {
			continue
		}
		out = append(out, l)
		if c.Limit > 0 && len(out) >= c.Limit {
			break
		}
	}
	return out
}

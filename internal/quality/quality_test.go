package quality

import (
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Tier
	}{
		{"4k by token", "ESPN 4K", []Tier{Tier4K}},
		{"uhd", "Discovery UHD", []Tier{Tier4K}},
		{"2160p", "Nat Geo 2160p", []Tier{Tier4K}},
		{"fhd", "BBC One FHD", []Tier{TierFHD}},
		{"1080p", "CNN 1080p", []Tier{TierFHD}},
		{"hd standalone", "Fox News HD", []Tier{TierHD}},
		{"720p", "Sky Sports 720p", []Tier{TierHD}},
		{"sd", "Local SD", []Tier{TierSD}},
		{"480p", "Channel 5 480p", []Tier{TierSD}},
		{"no tier defaults sd", "Generic Channel", []Tier{TierSD}},
		{"fhd not also hd", "News FHD", []Tier{TierFHD}},
		{"uhd not also hd", "Sports UHD", []Tier{Tier4K}},
		{"multi tier", "Channel HD SD", []Tier{TierHD, TierSD}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Classify(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMarshalTiers(t *testing.T) {
	got := MarshalTiers([]Tier{TierHD, TierSD})
	want := `["HD","SD"]`
	if got != want {
		t.Errorf("MarshalTiers = %q, want %q", got, want)
	}
}

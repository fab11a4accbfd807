package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestMissingYears(t *testing.T) {
	tests := []struct {
		name      string
		price     []int
		adi       []int
		published []int
		want      []int
	}{
		{
			name:      "intersection minus published",
			price:     []int{2018, 2019, 2020},
			adi:       []int{2019, 2020, 2021},
			published: []int{2019},
			want:      []int{2020},
		},
		{
			name:      "nothing published yet",
			price:     []int{2020, 2018, 2019},
			adi:       []int{2018, 2019, 2020},
			published: nil,
			want:      []int{2018, 2019, 2020},
		},
		{
			name:      "everything published",
			price:     []int{2019, 2020},
			adi:       []int{2019, 2020},
			published: []int{2019, 2020},
			want:      nil,
		},
		{
			name:      "no overlap between sources",
			price:     []int{2000, 2001},
			adi:       []int{2015},
			published: nil,
			want:      nil,
		},
		{
			name:      "duplicates collapse",
			price:     []int{2020, 2020, 2019},
			adi:       []int{2019, 2020, 2020},
			published: nil,
			want:      []int{2019, 2020},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MissingYears(tt.price, tt.adi, tt.published)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("MissingYears mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestYearsFromColumn(t *testing.T) {
	tbl := NewTable("q", []string{"year"}, []Row{
		{"year": int64(2021)}, {"year": "2019"}, {"year": nil}, {"year": 2020.0}, {"year": 2020.5}, {"year": int64(2021)},
	})

	got := YearsFromColumn(tbl, "year")

	if diff := cmp.Diff([]int{2019, 2020, 2021}, got); diff != "" {
		t.Errorf("YearsFromColumn mismatch (-want +got):\n%s", diff)
	}
}

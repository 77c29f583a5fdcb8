package testsupport

import (
	"fmt"
	"strings"
)

// SyntheticCSV builds a labelled dataset in the upload format. A field needs
// irrigation exactly when moisture is below 45, so a linear model separates it.
func SyntheticCSV(rows int) string {
	var sb strings.Builder
	sb.WriteString("soil_type,Seedling Stage,MOI,temp,humidity,result\n")
	soils := []string{"Clay", "Loamy", "Sandy"}
	stages := []string{"Germination", "Vegetative", "Flowering"}
	for i := 0; i < rows; i++ {
		moisture := 5 + (i*37)%90
		label := 0
		if moisture < 45 {
			label = 1
		}
		fmt.Fprintf(&sb, "%s,%s,%d,%d,%d,%d\n",
			soils[i%3], stages[(i/3)%3], moisture, 20+(i*13)%15, 30+(i*7)%50, label)
	}
	return sb.String()
}

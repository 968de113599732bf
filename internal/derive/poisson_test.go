package derive

import (
	"errors"
	"math"
	"testing"

	"github.com/marketflow/marketflow/internal/common"
)

// With a single binary predictor the Poisson MLE is exact: the intercept is
// log(mean of the x=0 group) and the coefficient is the log of the group
// rate ratio.
func TestFitPoisson_TwoGroupExactMLE(t *testing.T) {
	const n = 40
	y := make([]float64, n)
	x := make([]float64, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			x[i] = 0
			y[i] = 1
		} else {
			x[i] = 1
			y[i] = 3
		}
	}

	fit, err := fitPoisson(y, [][]float64{x}, []string{"promo"})
	if err != nil {
		t.Fatalf("fitPoisson: %v", err)
	}
	if !fit.Converged {
		t.Fatal("fit did not converge")
	}

	if got, want := fit.Intercept, math.Log(1.0); math.Abs(got-want) > 1e-6 {
		t.Errorf("intercept = %v, want %v", got, want)
	}
	if len(fit.Terms) != 1 {
		t.Fatalf("terms = %d, want 1 (intercept excluded)", len(fit.Terms))
	}
	term := fit.Terms[0]
	if term.Name != "promo" {
		t.Errorf("term name = %q, want promo", term.Name)
	}
	if got, want := term.Coef, math.Log(3.0); math.Abs(got-want) > 1e-6 {
		t.Errorf("coefficient = %v, want log(3) = %v", got, want)
	}

	// Wald SE for the two-group Poisson contrast: sqrt(1/sum(y0) + 1/sum(y1)).
	wantSE := math.Sqrt(1.0/20.0 + 1.0/60.0)
	if math.Abs(term.StdErr-wantSE) > 1e-6 {
		t.Errorf("std error = %v, want %v", term.StdErr, wantSE)
	}
}

func TestFitPoisson_InterceptOnlyRecoverLogMean(t *testing.T) {
	y := []float64{2, 4, 6, 8}
	fit, err := fitPoisson(y, nil, nil)
	if err != nil {
		t.Fatalf("fitPoisson: %v", err)
	}
	if got, want := fit.Intercept, math.Log(5.0); math.Abs(got-want) > 1e-6 {
		t.Errorf("intercept = %v, want log(5) = %v", got, want)
	}
	if len(fit.Terms) != 0 {
		t.Errorf("terms = %d, want 0", len(fit.Terms))
	}
}

func TestFitPoisson_SingularDesign(t *testing.T) {
	y := []float64{1, 2, 3, 4, 5, 6}
	x1 := []float64{1, 2, 3, 4, 5, 6}
	x2 := []float64{0, 0, 0, 0, 0, 0} // linearly dependent with nothing to estimate

	_, err := fitPoisson(y, [][]float64{x1, x2}, []string{"a", "b"})
	if !errors.Is(err, common.ErrSingularMatrix) {
		t.Fatalf("err = %v, want ErrSingularMatrix", err)
	}
}

func TestFitPoisson_NoObservations(t *testing.T) {
	_, err := fitPoisson(nil, nil, nil)
	if !errors.Is(err, common.ErrDegenerate) {
		t.Fatalf("err = %v, want ErrDegenerate", err)
	}
}

func TestFitPoisson_NameMismatch(t *testing.T) {
	_, err := fitPoisson([]float64{1, 2}, [][]float64{{0, 1}}, nil)
	if err == nil {
		t.Fatal("expected error for predictor/name count mismatch")
	}
}

func TestNormalCDF(t *testing.T) {
	tests := []struct {
		x    float64
		want float64
	}{
		{0, 0.5},
		{z975, 0.975},
		{-z975, 0.025},
	}
	for _, tt := range tests {
		if got := normalCDF(tt.x); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("normalCDF(%v) = %v, want %v", tt.x, got, tt.want)
		}
	}
}

func TestTwoSidedP(t *testing.T) {
	if got := twoSidedP(0); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("twoSidedP(0) = %v, want 1", got)
	}
	if got := twoSidedP(z975); math.Abs(got-0.05) > 1e-9 {
		t.Errorf("twoSidedP(z975) = %v, want 0.05", got)
	}
	if got, want := twoSidedP(5), twoSidedP(-5); got != want {
		t.Errorf("twoSidedP must be symmetric: %v vs %v", got, want)
	}
}

func TestSolveCholesky(t *testing.T) {
	a := [][]float64{
		{4, 2},
		{2, 3},
	}
	b := []float64{10, 8}
	x, err := solveCholesky(a, b)
	if err != nil {
		t.Fatalf("solveCholesky: %v", err)
	}
	// Verify a x = b directly.
	for i := range a {
		got := a[i][0]*x[0] + a[i][1]*x[1]
		if math.Abs(got-b[i]) > 1e-10 {
			t.Errorf("row %d: a x = %v, want %v", i, got, b[i])
		}
	}
}

func TestInvertCholesky(t *testing.T) {
	a := [][]float64{
		{2, 1},
		{1, 2},
	}
	inv, err := invertCholesky(a)
	if err != nil {
		t.Fatalf("invertCholesky: %v", err)
	}
	// a * inv must be the identity.
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			got := a[i][0]*inv[0][j] + a[i][1]*inv[1][j]
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(got-want) > 1e-10 {
				t.Errorf("(a inv)[%d][%d] = %v, want %v", i, j, got, want)
			}
		}
	}
}

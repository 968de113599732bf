package derive

import (
	"fmt"
	"math"

	"github.com/marketflow/marketflow/internal/common"
)

// Term is one fitted coefficient with its standard error.
type Term struct {
	Name   string
	Coef   float64
	StdErr float64
}

// FitResult is the outcome of one Poisson fit. Terms excludes the intercept;
// the intercept carries no predictor semantics downstream.
type FitResult struct {
	Terms      []Term
	Intercept  float64
	Converged  bool
	Iterations int
}

const (
	maxIterations = 50
	convergeTol   = 1e-8
	// etaClamp bounds the linear predictor so exp() cannot overflow during
	// early iterations.
	etaClamp = 30.0
)

// fitPoisson fits a Poisson count regression of y on the predictor columns
// by iteratively reweighted least squares. predictors is column-major:
// predictors[j][i] is observation i of predictor j. An intercept is added
// internally.
func fitPoisson(y []float64, predictors [][]float64, names []string) (*FitResult, error) {
	n := len(y)
	if n == 0 {
		return nil, fmt.Errorf("%w: no observations", common.ErrDegenerate)
	}
	if len(predictors) != len(names) {
		return nil, fmt.Errorf("predictor count %d does not match name count %d", len(predictors), len(names))
	}
	p := len(predictors) + 1 // intercept first

	// Design matrix, row-major.
	x := make([][]float64, n)
	for i := 0; i < n; i++ {
		x[i] = make([]float64, p)
		x[i][0] = 1
		for j, col := range predictors {
			x[i][j+1] = col[i]
		}
	}

	beta := make([]float64, p)
	meanY := 0.0
	for _, v := range y {
		meanY += v
	}
	meanY /= float64(n)
	beta[0] = math.Log(meanY + 1e-8)

	var (
		converged bool
		iter      int
		xtwx      [][]float64
	)
	for iter = 1; iter <= maxIterations; iter++ {
		// Working response and weights for the log link.
		eta := make([]float64, n)
		mu := make([]float64, n)
		z := make([]float64, n)
		for i := 0; i < n; i++ {
			e := 0.0
			for j := 0; j < p; j++ {
				e += x[i][j] * beta[j]
			}
			e = math.Max(-etaClamp, math.Min(etaClamp, e))
			eta[i] = e
			mu[i] = math.Exp(e)
			z[i] = e + (y[i]-mu[i])/mu[i]
		}

		// Normal equations: (X'WX) beta = X'Wz with W = diag(mu).
		xtwx = make([][]float64, p)
		xtwz := make([]float64, p)
		for j := 0; j < p; j++ {
			xtwx[j] = make([]float64, p)
		}
		for i := 0; i < n; i++ {
			w := mu[i]
			for j := 0; j < p; j++ {
				xj := x[i][j]
				xtwz[j] += w * xj * z[i]
				for k := j; k < p; k++ {
					xtwx[j][k] += w * xj * x[i][k]
				}
			}
		}
		for j := 0; j < p; j++ {
			for k := 0; k < j; k++ {
				xtwx[j][k] = xtwx[k][j]
			}
		}

		next, err := solveCholesky(xtwx, xtwz)
		if err != nil {
			return nil, err
		}

		maxDelta := 0.0
		for j := 0; j < p; j++ {
			maxDelta = math.Max(maxDelta, math.Abs(next[j]-beta[j]))
		}
		beta = next
		if maxDelta < convergeTol {
			converged = true
			break
		}
	}

	if !converged {
		return nil, fmt.Errorf("%w after %d iterations", common.ErrNoConvergence, maxIterations)
	}

	// Standard errors from the inverse of the final Fisher information.
	cov, err := invertCholesky(xtwx)
	if err != nil {
		return nil, err
	}

	result := &FitResult{
		Intercept:  beta[0],
		Converged:  true,
		Iterations: iter,
	}
	for j, name := range names {
		result.Terms = append(result.Terms, Term{
			Name:   name,
			Coef:   beta[j+1],
			StdErr: math.Sqrt(cov[j+1][j+1]),
		})
	}
	return result, nil
}

// z975 is the 97.5% standard normal quantile used for 95% Wald intervals.
const z975 = 1.959963984540054

// normalCDF is the standard normal distribution function.
func normalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// twoSidedP is the two-sided p-value for a Wald z statistic.
func twoSidedP(z float64) float64 {
	return 2 * (1 - normalCDF(math.Abs(z)))
}

// cholesky factors a symmetric positive-definite matrix into L L'. A
// non-positive pivot means the matrix is singular: some predictor is a
// linear combination of others.
func cholesky(a [][]float64) ([][]float64, error) {
	p := len(a)
	l := make([][]float64, p)
	for i := range l {
		l[i] = make([]float64, p)
	}
	for j := 0; j < p; j++ {
		d := a[j][j]
		for k := 0; k < j; k++ {
			d -= l[j][k] * l[j][k]
		}
		if d <= 1e-12 {
			return nil, fmt.Errorf("%w: non-positive pivot at column %d", common.ErrSingularMatrix, j)
		}
		l[j][j] = math.Sqrt(d)
		for i := j + 1; i < p; i++ {
			s := a[i][j]
			for k := 0; k < j; k++ {
				s -= l[i][k] * l[j][k]
			}
			l[i][j] = s / l[j][j]
		}
	}
	return l, nil
}

// solveCholesky solves a x = b for symmetric positive-definite a.
func solveCholesky(a [][]float64, b []float64) ([]float64, error) {
	l, err := cholesky(a)
	if err != nil {
		return nil, err
	}
	p := len(b)

	// Forward substitution: L u = b.
	u := make([]float64, p)
	for i := 0; i < p; i++ {
		s := b[i]
		for k := 0; k < i; k++ {
			s -= l[i][k] * u[k]
		}
		u[i] = s / l[i][i]
	}

	// Back substitution: L' x = u.
	x := make([]float64, p)
	for i := p - 1; i >= 0; i-- {
		s := u[i]
		for k := i + 1; k < p; k++ {
			s -= l[k][i] * x[k]
		}
		x[i] = s / l[i][i]
	}
	return x, nil
}

// invertCholesky inverts a symmetric positive-definite matrix by solving
// against the identity column by column.
func invertCholesky(a [][]float64) ([][]float64, error) {
	p := len(a)
	inv := make([][]float64, p)
	for i := range inv {
		inv[i] = make([]float64, p)
	}
	for j := 0; j < p; j++ {
		e := make([]float64, p)
		e[j] = 1
		col, err := solveCholesky(a, e)
		if err != nil {
			return nil, err
		}
		for i := 0; i < p; i++ {
			inv[i][j] = col[i]
		}
	}
	return inv, nil
}

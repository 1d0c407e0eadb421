package tracking

import "math"

// assign solves the rectangular assignment problem for cost, minimizing the
// total cost. It returns result[i] = column assigned to row i, or -1 when row
// i stays unassigned. Entries greater than gate are never assigned.
//
// The matrix is padded to a square and solved with the O(n³) Kuhn-Munkres
// potentials method. Padding and gated cells share one unassigned cost just
// above the gate, so it stays on the scale of the real costs and every
// in-gate match remains cheaper than leaving a row unassigned.
func assign(cost [][]float64, gate float64) []int {
	rows := len(cost)
	if rows == 0 {
		return nil
	}
	cols := len(cost[0])

	result := make([]int, rows)
	for i := range result {
		result[i] = -1
	}
	if cols == 0 {
		return result
	}

	unassigned := 2*gate + 1
	dim := max(rows, cols)
	c := make([][]float64, dim)
	for i := range c {
		c[i] = make([]float64, dim)
		for j := range c[i] {
			c[i][j] = unassigned
			if i < rows && j < cols && cost[i][j] <= gate {
				c[i][j] = cost[i][j]
			}
		}
	}

	const inf = math.MaxFloat64 / 2

	// 1-indexed; column 0 is a virtual column used to start each path.
	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	owner := make([]int, dim+1)
	way := make([]int, dim+1)
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		owner[0] = i
		col := 0
		for j := range minv {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[col] = true
			row := owner[col]
			delta := inf
			next := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				if cur := c[row-1][j-1] - u[row] - v[j]; cur < minv[j] {
					minv[j] = cur
					way[j] = col
				}
				if minv[j] < delta {
					delta = minv[j]
					next = j
				}
			}
			if next < 0 {
				break
			}

			for j := 0; j <= dim; j++ {
				if used[j] {
					u[owner[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			col = next
			if owner[col] == 0 {
				break
			}
		}

		for col != 0 {
			prev := way[col]
			owner[col] = owner[prev]
			col = prev
		}
	}

	for j := 1; j <= dim; j++ {
		i := owner[j] - 1
		if i < 0 || i >= rows || j-1 >= cols {
			continue
		}
		if cost[i][j-1] <= gate {
			result[i] = j - 1
		}
	}
	return result
}

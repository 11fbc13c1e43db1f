package search

// finish applies paths_only collapsing (if requested) and pagination to a
// fully-matched, unsorted result slice, then assembles the response
// envelope (spec §4.8 Response envelope / Ordering / Pagination).
func (e *Engine) finish(status Status, warning string, canTrust bool, results []Match, f Filter) (Response, error) {
	if f.PathsOnly {
		allPaths := pathsOnly(results)
		page, pag := paginatePaths(allPaths, f)
		return Response{
			Status:          status,
			CanTrustResults: canTrust,
			Warning:         warning,
			Pagination:      pag,
			Paths:           page,
		}, nil
	}

	page, pag := sortAndPaginate(results, f)
	return Response{
		Status:          status,
		CanTrustResults: canTrust,
		Warning:         warning,
		Pagination:      pag,
		Results:         page,
	}, nil
}

package wip

// The calculation cascade runs five groups in a fixed order because later
// groups consume the output of earlier ones: contract and cost totals feed
// revenue recognition, which feeds the WIP adjustments. Each group is a pure
// function of the raw inputs, the prior period's values, and the snapshot
// accumulated so far.

type stage func(PeriodInput, *PriorSnapshot, DerivedSnapshot) DerivedSnapshot

var stages = []stage{
	contractStage,
	costStage,
	revenueRecognitionStage,
	jobMarginStage,
	wipAdjustmentStage,
}

// ComputeDerivedSnapshot calculates every derived field for one period from
// the user-entered inputs and the prior period's snapshot (nil when the
// period is the first for its project). It never fails: any field whose
// dependencies are missing comes back nil.
func ComputeDerivedSnapshot(input PeriodInput, prior *PriorSnapshot) DerivedSnapshot {
	var snap DerivedSnapshot
	for _, s := range stages {
		snap = s(input, prior, snap)
	}
	return snap
}

// contractStage computes the total contract amount and its variance against
// the prior period. Change orders are additive on top of the original
// contract; a missing change order amount leaves the original as the total.
func contractStage(input PeriodInput, prior *PriorSnapshot, snap DerivedSnapshot) DerivedSnapshot {
	switch {
	case input.OriginalContractAmount != nil && input.ChangeOrderAmount != nil:
		snap.TotalContractAmount = addOpt(input.OriginalContractAmount, input.ChangeOrderAmount)
	case input.OriginalContractAmount != nil:
		snap.TotalContractAmount = Ptr(*input.OriginalContractAmount)
	}

	if prior != nil {
		snap.ContractVarianceVsPrior = subOpt(snap.TotalContractAmount, prior.TotalContractAmount)
	}
	return snap
}

// costStage computes the estimated final cost and its variance against the
// prior period.
func costStage(input PeriodInput, prior *PriorSnapshot, snap DerivedSnapshot) DerivedSnapshot {
	snap.EstimatedFinalCost = addOpt(input.CostToDate, input.EstimatedCostToComplete)
	if prior != nil {
		snap.FinalCostVarianceVsPrior = subOpt(snap.EstimatedFinalCost, prior.EstimatedFinalCost)
	}
	return snap
}

// revenueRecognitionStage computes the US GAAP percent-of-completion fields.
// Percent completion is cost to date over estimated final cost; revenue
// earned is that fraction of the total contract. Division guards yield nil,
// never an error.
func revenueRecognitionStage(input PeriodInput, _ *PriorSnapshot, snap DerivedSnapshot) DerivedSnapshot {
	snap.PercentCompletion = ratioPercent(input.CostToDate, snap.EstimatedFinalCost)

	if snap.TotalContractAmount != nil && snap.PercentCompletion != nil {
		snap.RevenueEarnedToDate = Ptr(round2(snap.TotalContractAmount.Mul(*snap.PercentCompletion).Div(hundred)))
	}

	snap.JobMarginToDate = subOpt(snap.RevenueEarnedToDate, input.CostToDate)
	snap.JobMarginToDatePercentOfRevenue = ratioPercent(snap.JobMarginToDate, snap.RevenueEarnedToDate)
	return snap
}

// jobMarginStage computes the job margin at completion, its variance against
// the prior period, and its share of the contract value.
func jobMarginStage(_ PeriodInput, prior *PriorSnapshot, snap DerivedSnapshot) DerivedSnapshot {
	snap.JobMarginAtCompletion = subOpt(snap.TotalContractAmount, snap.EstimatedFinalCost)
	if prior != nil {
		snap.JobMarginVarianceVsPrior = subOpt(snap.JobMarginAtCompletion, prior.JobMarginAtCompletion)
	}
	snap.JobMarginPercentOfContract = ratioPercent(snap.JobMarginAtCompletion, snap.TotalContractAmount)
	return snap
}

// wipAdjustmentStage computes the under/over-billing reconciliation entries.
// Both fields require revenue earned, cost to date, and billed to date to all
// be present. The two branches compare independently against the same revenue
// baseline; in ordinary data at most one fires per period.
func wipAdjustmentStage(input PeriodInput, _ *PriorSnapshot, snap DerivedSnapshot) DerivedSnapshot {
	if snap.RevenueEarnedToDate == nil || input.CostToDate == nil || input.RevenueBilledToDate == nil {
		return snap
	}

	if input.CostToDate.GreaterThan(*snap.RevenueEarnedToDate) {
		snap.CostsInExcessOfBillings = subOpt(input.CostToDate, snap.RevenueEarnedToDate)
	}
	if input.RevenueBilledToDate.GreaterThan(*snap.RevenueEarnedToDate) {
		snap.BillingsInExcessOfRevenue = subOpt(input.RevenueBilledToDate, snap.RevenueEarnedToDate)
	}
	return snap
}

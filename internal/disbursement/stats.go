package disbursement

// ComputeStats aggregates counts and amounts over schedules whose alerts are
// already current.
func ComputeStats(schedules []Schedule) Stats {
	stats := Stats{AlertCounts: make(map[AlertLevel]int, len(AlertLevels))}
	for _, level := range AlertLevels {
		stats.AlertCounts[level] = 0
	}
	for _, s := range schedules {
		stats.Total++
		stats.TotalAmount += s.Amount
		switch s.Status {
		case StatusScheduled:
			stats.Scheduled++
			stats.ScheduledAmount += s.Amount
		case StatusApproved:
			stats.Approved++
			stats.ScheduledAmount += s.Amount
		case StatusPaid:
			stats.Paid++
			if s.ActualAmount != nil {
				stats.PaidAmount += *s.ActualAmount
			}
		case StatusOverdue:
			stats.Overdue++
			stats.OverdueAmount += s.Amount
		}
		if s.ApprovalStatus == ApprovalPending {
			stats.PendingApprovalCount++
		}
		if s.AlertLevel.Valid() {
			stats.AlertCounts[s.AlertLevel]++
		}
	}
	return stats
}

// ComputePaymentStats aggregates counts and amounts over payments.
func ComputePaymentStats(payments []Payment) PaymentStats {
	var stats PaymentStats
	for _, p := range payments {
		stats.Total++
		stats.TotalAmount += p.Amount
		switch p.Status {
		case PaymentCompleted:
			stats.Completed++
			stats.CompletedAmount += p.Amount
		case PaymentCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// BuildMonthlyReport groups the completed payments by partner company and by
// payment method. Payments without a company are grouped under the partner
// name.
func BuildMonthlyReport(year, month int, payments []Payment) MonthlyReport {
	report := MonthlyReport{
		Year:            year,
		Month:           month,
		ByPartner:       make(map[string]ReportBucket),
		ByPaymentMethod: make(map[string]ReportBucket),
	}
	for _, p := range payments {
		if p.Status != PaymentCompleted {
			continue
		}
		if p.PaymentDate.Year() != year || int(p.PaymentDate.Month()) != month {
			continue
		}
		report.TotalDisbursements++
		report.TotalAmount += p.Amount

		partner := p.PartnerCompany
		if partner == "" {
			partner = p.PartnerName
		}
		addToBucket(report.ByPartner, partner, p.Amount)
		addToBucket(report.ByPaymentMethod, p.Method, p.Amount)
	}
	return report
}

func addToBucket(buckets map[string]ReportBucket, key string, amount int64) {
	b := buckets[key]
	b.Count++
	b.Amount += amount
	buckets[key] = b
}

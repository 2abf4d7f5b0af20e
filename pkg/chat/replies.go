package chat

import (
	"strings"

	"pharmasure/pkg/domain"
)

const fallbackReply = "Message received."

type rule struct {
	triggers []string
	reply    string
}

type replyTable struct {
	rules    []rule
	fallback string
}

var (
	patientReplies = replyTable{
		rules: []rule{
			{[]string{"dosage", "take"}, "Please take one tablet after meals. Avoid taking it on an empty stomach to prevent nausea."},
			{[]string{"side effect", "dizzy"}, "Dizziness is a known but rare side effect. If it persists for more than 2 hours, please visit the clinic."},
			{[]string{"price", "cost"}, "The current retail price is ₹145 per strip. We have stock available."},
		},
		fallback: "I've verified the batch number you scanned. It is authentic and safe to use.",
	}
	manufacturerReplies = replyTable{
		rules: []rule{
			{[]string{"sales", "demand"}, "Weekly sales report received. Demand in the North region has increased by 15%."},
			{[]string{"delivery", "shipment"}, "Batch #8992 is currently in transit. Expected arrival at the distribution hub is tomorrow."},
			{[]string{"recall"}, "Acknowledged. We have quarantined the affected batch immediately."},
		},
		fallback: "Copy that. Inventory levels are being updated in the central database.",
	}
	distributorReplies = replyTable{
		rules: []rule{
			{[]string{"stock", "order"}, "For bulk orders, please use the 'Place Order' button above for faster processing."},
			{[]string{"expiry"}, "Please return any stock expiring within 30 days for credit."},
		},
		fallback: "We have logged your query with the logistics team.",
	}
	inquiryReplies = replyTable{
		rules: []rule{
			{[]string{"help"}, "I am taking my medication but feeling nauseous. Is this normal?"},
			{[]string{"refill"}, "Can I get a refill for my prescription #9921?"},
		},
		fallback: "Thank you for the information. I will check the app.",
	}
)

// Reply picks the scripted partner answer. Triggers match case-insensitively
// anywhere in the text and the first matching rule wins.
func Reply(role domain.Role, channel domain.Channel, text string) string {
	table, ok := tableFor(role, channel)
	if !ok {
		return fallbackReply
	}
	lower := strings.ToLower(text)
	for _, r := range table.rules {
		for _, trigger := range r.triggers {
			if strings.Contains(lower, trigger) {
				return r.reply
			}
		}
	}
	return table.fallback
}

func tableFor(role domain.Role, channel domain.Channel) (replyTable, bool) {
	switch role {
	case domain.RolePatient:
		return patientReplies, true
	case domain.RoleManufacturer:
		return manufacturerReplies, true
	case domain.RolePharmacist:
		if channel == domain.ChannelDownstream {
			return inquiryReplies, true
		}
		return distributorReplies, true
	}
	return replyTable{}, false
}

// Partner names who the user is talking to on a channel.
func Partner(role domain.Role, channel domain.Channel) string {
	switch role {
	case domain.RolePatient:
		return "Verified Pharmacist"
	case domain.RoleManufacturer:
		return "Pharmacy Network"
	case domain.RolePharmacist:
		if channel == domain.ChannelDownstream {
			return "Patient Inquiries"
		}
		return "Manufacturer / Distributor"
	}
	return ""
}

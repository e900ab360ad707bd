package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bher20/ebillmanager/internal/billing"
	"github.com/bher20/ebillmanager/internal/bills"
)

var billOpts struct {
	values     string
	seriesFile string
	source     string
	tariff     string
	tariffFile string
	period     string
	days       int
	asJSON     bool
	pdfOut     string
	save       bool
}

var billCmd = &cobra.Command{
	Use:   "bill",
	Short: "Calculate a bill",
	Long: `Calculate a bill from daily consumption values, a JSON series file or a
file uploaded to the analytics backend.

The series file holds {"timestamps": [...], "values": [...]}. A tariff file
holds a tariff configuration such as {"mode": "flat", "baseRate": 5}.

Examples:
  ebillmanager bill --values 10,12.5,9.75
  ebillmanager bill --series-file may.json --tariff msedcl-commercial --json
  ebillmanager bill --source electricity_data.csv --pdf may.pdf --save`,
	Args: cobra.NoArgs,
	RunE: runBill,
}

func init() {
	rootCmd.AddCommand(billCmd)
	f := billCmd.Flags()
	f.StringVar(&billOpts.values, "values", "", "comma separated daily consumption in kWh")
	f.StringVar(&billOpts.seriesFile, "series-file", "", "JSON consumption series file")
	f.StringVar(&billOpts.source, "source", "", "file name on the analytics backend")
	f.StringVarP(&billOpts.tariff, "tariff", "t", "", "tariff preset key (default billing.default_tariff)")
	f.StringVar(&billOpts.tariffFile, "tariff-file", "", "JSON tariff configuration file, overrides --tariff")
	f.StringVar(&billOpts.period, "period", "", "billing period label")
	f.IntVar(&billOpts.days, "days", 0, "days in the billing period")
	f.BoolVar(&billOpts.asJSON, "json", false, "print the bill as JSON")
	f.StringVar(&billOpts.pdfOut, "pdf", "", "write the bill document from the document service to this path")
	f.BoolVar(&billOpts.save, "save", false, "store the bill and publish its event")
	billCmd.MarkFlagsMutuallyExclusive("values", "series-file", "source")
	billCmd.MarkFlagsOneRequired("values", "series-file", "source")
}

func parseValues(raw string) (*billing.ConsumptionSeries, error) {
	var vals []float64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("--values: %q is not a number", part)
		}
		vals = append(vals, v)
	}
	s, err := billing.NewSeries(nil, vals)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func readJSONFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func billRequest() (bills.Request, error) {
	req := bills.Request{
		Source:      billOpts.source,
		TariffKey:   billOpts.tariff,
		PeriodLabel: billOpts.period,
		BillingDays: billOpts.days,
	}
	switch {
	case billOpts.values != "":
		s, err := parseValues(billOpts.values)
		if err != nil {
			return req, err
		}
		req.Series = s
	case billOpts.seriesFile != "":
		var s billing.ConsumptionSeries
		if err := readJSONFile(billOpts.seriesFile, &s); err != nil {
			return req, err
		}
		req.Series = &s
	}
	if billOpts.tariffFile != "" {
		var t billing.TariffConfig
		if err := readJSONFile(billOpts.tariffFile, &t); err != nil {
			return req, err
		}
		req.Tariff = &t
	}
	return req, nil
}

func runBill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	req, err := billRequest()
	if err != nil {
		return err
	}

	var (
		svc *bills.Service
		sum billing.BillSummary
	)
	if billOpts.save {
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		svc = a.bills
		rec, err := svc.Calculate(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "stored bill %s\n", rec.ID)
		sum = rec.Summary
	} else {
		client := newUpstream()
		svc = bills.NewService(bills.Deps{Series: client, Documents: client, Defaults: billDefaults()})
		sum, err = svc.Preview(ctx, req)
		if err != nil {
			return err
		}
	}

	if billOpts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			return err
		}
	} else {
		printBill(cmd.OutOrStdout(), sum)
	}

	if billOpts.pdfOut != "" {
		pdf, err := svc.RenderSummary(ctx, sum)
		if err != nil {
			return fmt.Errorf("render bill document: %w", err)
		}
		if err := writeFileAtomically(billOpts.pdfOut, bytes.NewReader(pdf)); err != nil {
			return fmt.Errorf("write %s: %w", billOpts.pdfOut, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", billOpts.pdfOut, len(pdf))
	}
	return nil
}

func printBill(out io.Writer, sum billing.BillSummary) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", "Item", "kWh", "Rate", "Amount")
	for _, seg := range sum.Segments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", seg.Label, seg.Consumption.StringFixed(2), seg.Rate.String(), seg.Cost.StringFixed(2))
		for _, t := range seg.Tiers {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t\n", t.Label, t.Consumption.StringFixed(2), t.Rate.String(), t.Cost.StringFixed(2))
		}
	}
	fmt.Fprintf(tw, "%s\t\t\t%s\t\n", "Energy charge", sum.EnergyCharge.StringFixed(2))
	fmt.Fprintf(tw, "%s\t\t\t%s\t\n", "Fixed charge", sum.FixedCharge.StringFixed(2))
	fmt.Fprintf(tw, "%s\t%s\t\t%s\t\n", "Total", sum.TotalConsumption.StringFixed(2), sum.TotalCost.StringFixed(2))
	_ = tw.Flush()
	fmt.Fprintf(out, "\n%s, %d days, %s kWh/day (%s tariff)\n",
		sum.BillingPeriod, sum.BillingDays, sum.AverageDailyConsumption.StringFixed(2), sum.TariffType)
}

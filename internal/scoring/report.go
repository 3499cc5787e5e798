package scoring

const (
	ClassNoRain = "No rain"
	ClassRain   = "Rain"
)

type ClassScores struct {
	Class     string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// ClassificationReport holds per-class scores, their macro and
// support-weighted averages, and overall accuracy.
type ClassificationReport struct {
	Classes     []ClassScores // "No rain" then "Rain"
	MacroAvg    ClassScores
	WeightedAvg ClassScores
	Accuracy    float64
	Support     int
}

func NewClassificationReport(yTrue, yPred []bool) (ClassificationReport, error) {
	c, err := NewConfusion(yTrue, yPred)
	if err != nil {
		return ClassificationReport{}, err
	}

	neg := c.Negative()
	classes := []ClassScores{
		{Class: ClassNoRain, Precision: neg.Precision(), Recall: neg.Recall(), F1: neg.F1(), Support: c.TN + c.FP},
		{Class: ClassRain, Precision: c.Precision(), Recall: c.Recall(), F1: c.F1(), Support: c.TP + c.FN},
	}

	r := ClassificationReport{
		Classes:  classes,
		Accuracy: c.Accuracy(),
		Support:  c.Total(),
	}
	r.MacroAvg = ClassScores{Class: "macro avg", Support: r.Support}
	r.WeightedAvg = ClassScores{Class: "weighted avg", Support: r.Support}
	for _, cs := range classes {
		w := float64(cs.Support) / float64(r.Support)
		r.MacroAvg.Precision += cs.Precision / float64(len(classes))
		r.MacroAvg.Recall += cs.Recall / float64(len(classes))
		r.MacroAvg.F1 += cs.F1 / float64(len(classes))
		r.WeightedAvg.Precision += cs.Precision * w
		r.WeightedAvg.Recall += cs.Recall * w
		r.WeightedAvg.F1 += cs.F1 * w
	}
	return r, nil
}

// Rounded returns a copy with every score rounded to places decimals.
func (r ClassificationReport) Rounded(places int32) ClassificationReport {
	round := func(cs ClassScores) ClassScores {
		cs.Precision = Round(cs.Precision, places)
		cs.Recall = Round(cs.Recall, places)
		cs.F1 = Round(cs.F1, places)
		return cs
	}
	out := r
	out.Classes = make([]ClassScores, len(r.Classes))
	for i, cs := range r.Classes {
		out.Classes[i] = round(cs)
	}
	out.MacroAvg = round(r.MacroAvg)
	out.WeightedAvg = round(r.WeightedAvg)
	out.Accuracy = Round(r.Accuracy, places)
	return out
}

// Class returns the scores for a class label.
func (r ClassificationReport) Class(name string) (ClassScores, bool) {
	for _, cs := range r.Classes {
		if cs.Class == name {
			return cs, true
		}
	}
	return ClassScores{}, false
}

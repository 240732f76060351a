package services

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"

	"tenderhub/models"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	// теги правил уровня структуры
	nonNegativeTag = "nonnegative"
	budgetRangeTag = "budget_range"
	weightsSumTag  = "weights_sum"
)

const criteriaTotalWeight = 100

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// в ошибках используем имена полей из JSON
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	validate.RegisterStructValidation(tenderInputStructValidation, models.TenderInput{})
	validate.RegisterStructValidation(bidInputStructValidation, models.BidInput{})

	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range []string{nonNegativeTag, budgetRangeTag, weightsSumTag} {
		_ = validate.RegisterTranslation(tag, translator, registerFn, translateCustomValidationErrs)
	}
}

func translateCustomValidationErrs(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case nonNegativeTag:
		return fe.Field() + " must not be negative"
	case budgetRangeTag:
		return "minBudget must not exceed maxBudget"
	case weightsSumTag:
		return "evaluation criteria weights must add up to 100, got " + fe.Param()
	default:
		return ""
	}
}

// tenderInputStructValidation - правила, которые не выразить тегами:
// денежные поля и сумма весов критериев.
func tenderInputStructValidation(sl validator.StructLevel) {
	in, ok := sl.Current().Interface().(models.TenderInput)
	if !ok {
		return
	}
	if in.MinBudget.Valid && in.MinBudget.Decimal.IsNegative() {
		sl.ReportError(in.MinBudget, "minBudget", "MinBudget", nonNegativeTag, "")
	}
	if in.MaxBudget.Valid && in.MaxBudget.Decimal.IsNegative() {
		sl.ReportError(in.MaxBudget, "maxBudget", "MaxBudget", nonNegativeTag, "")
	}
	if in.MinBudget.Valid && in.MaxBudget.Valid && in.MinBudget.Decimal.GreaterThan(in.MaxBudget.Decimal) {
		sl.ReportError(in.MinBudget, "minBudget", "MinBudget", budgetRangeTag, "")
	}
	if in.TenderFee.Valid && in.TenderFee.Decimal.IsNegative() {
		sl.ReportError(in.TenderFee, "tenderFee", "TenderFee", nonNegativeTag, "")
	}
	if len(in.EvaluationCriteria) > 0 {
		total := models.Criteria(in.EvaluationCriteria).TotalWeight()
		if total != criteriaTotalWeight {
			sl.ReportError(in.EvaluationCriteria, "evaluationCriteria", "EvaluationCriteria", weightsSumTag, strconv.Itoa(total))
		}
	}
}

func bidInputStructValidation(sl validator.StructLevel) {
	in, ok := sl.Current().Interface().(models.BidInput)
	if !ok {
		return
	}
	if in.ProposedAmount != nil && in.ProposedAmount.IsNegative() {
		sl.ReportError(in.ProposedAmount, "proposedAmount", "ProposedAmount", nonNegativeTag, "")
	}
	if in.YearsOfExperience != nil && *in.YearsOfExperience < 0 {
		sl.ReportError(in.YearsOfExperience, "yearsOfExperience", "YearsOfExperience", nonNegativeTag, "")
	}
}

// validateInput прогоняет валидатор и переводит все ошибки в ValidationError
func validateInput(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validate input")
	}
	flds := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		flds = append(flds, FieldError{Field: fieldPath(fe), Message: fe.Translate(translator)})
	}
	return NewValidationError(flds...)
}

// fieldPath отрезает имя корневой структуры: "TenderInput.evaluationCriteria[0].name"
// превращается в "evaluationCriteria[0].name"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func normalizeTenderInput(in models.TenderInput) models.TenderInput {
	in.Title = strings.TrimSpace(in.Title)
	in.ServiceType = strings.TrimSpace(in.ServiceType)
	in.PropertyName = strings.TrimSpace(in.PropertyName)
	in.PropertyAddress = strings.TrimSpace(in.PropertyAddress)
	in.ScopeOfWork = strings.TrimSpace(in.ScopeOfWork)
	in.ContactPerson = strings.TrimSpace(in.ContactPerson)
	in.ContactEmail = strings.TrimSpace(in.ContactEmail)
	in.ContactPhone = strings.TrimSpace(in.ContactPhone)
	in.RequiredLicenses = compactStrings(in.RequiredLicenses)
	in.Documents = compactStrings(in.Documents)

	criteria := make([]models.EvaluationCriterion, len(in.EvaluationCriteria))
	for i, c := range in.EvaluationCriteria {
		criteria[i] = models.EvaluationCriterion{Name: strings.TrimSpace(c.Name), Weight: c.Weight}
	}
	in.EvaluationCriteria = criteria
	return in
}

func normalizeBidInput(in models.BidInput) models.BidInput {
	in.TenderID = strings.TrimSpace(in.TenderID)
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	in.CompanyRegistration = strings.TrimSpace(in.CompanyRegistration)
	in.ProposedTimeline = strings.TrimSpace(in.ProposedTimeline)
	in.CoverLetter = strings.TrimSpace(in.CoverLetter)
	in.ProposalDocument = strings.TrimSpace(in.ProposalDocument)
	return in
}

// compactStrings обрезает пробелы, выбрасывает пустые элементы и повторы,
// сохраняя порядок первого появления
func compactStrings(list []string) []string {
	res := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		res = append(res, s)
	}
	return res
}

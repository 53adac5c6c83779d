package storage

import "github.com/sheikh-saqib/prediction-billing-service/internal/models"

// FeatureColumns lists the prediction feature columns in the order used by
// FeatureArgs and FeatureDest.
const FeatureColumns = `n_days, drug, age, sex, ascites, hepatomegaly, spiders, edema,
	bilirubin, cholesterol, albumin, copper, alk_phos, sgot, tryglicerides, platelets, prothrombin, stage`

// FeatureCount is the number of columns in FeatureColumns.
const FeatureCount = 18

// FeatureArgs flattens a record into query arguments.
func FeatureArgs(f models.Features) []any {
	return []any{
		f.NDays, f.Drug, f.Age, f.Sex, f.Ascites, f.Hepatomegaly, f.Spiders, f.Edema,
		f.Bilirubin, f.Cholesterol, f.Albumin, f.Copper, f.AlkPhos, f.SGOT, f.Tryglicerides,
		f.Platelets, f.Prothrombin, f.Stage,
	}
}

// FeatureDest returns scan destinations for a record.
func FeatureDest(f *models.Features) []any {
	return []any{
		&f.NDays, &f.Drug, &f.Age, &f.Sex, &f.Ascites, &f.Hepatomegaly, &f.Spiders, &f.Edema,
		&f.Bilirubin, &f.Cholesterol, &f.Albumin, &f.Copper, &f.AlkPhos, &f.SGOT, &f.Tryglicerides,
		&f.Platelets, &f.Prothrombin, &f.Stage,
	}
}

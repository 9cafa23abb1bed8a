package usecase

import "github.com/iamvkosarev/lingro/pkg/local"

var (
	TextGreeting = local.NewSet(
		"Привет! Я Lingro, чем могу помочь?",
		local.NewTrans(local.Eng, "Hi! I'm Lingro, how can I help?"),
	)
	TextChatFailed = local.NewSet(
		"Ошибка при запросе к OpenAI. Пожалуйста, попробуйте позже.",
		local.NewTrans(local.Eng, "The assistant request failed. Please try again later."),
	)
	TextClarifyImage = local.NewSet(
		"Пожалуйста, уточните, какое изображение вы ищете.",
		local.NewTrans(local.Eng, "Please specify which image you are looking for."),
	)
	TextNoImagesFormat = local.NewSet(
		"По запросу «%s» ничего не найдено. Попробуйте изменить запрос или использовать другие ключевые слова.",
		local.NewTrans(local.Eng, "Nothing found for «%s». Try rephrasing or using other keywords."),
	)
	TextUploadFailed = local.NewSet(
		"Ошибка при отправке файла",
		local.NewTrans(local.Eng, "Failed to send the file"),
	)
	TextFileActionFailed = local.NewSet(
		"Ошибка при обработке файла",
		local.NewTrans(local.Eng, "Failed to process the file"),
	)
	TextCorrectedFile = local.NewSet(
		"Исправленный файл",
		local.NewTrans(local.Eng, "Corrected file"),
	)
	TextTranslatedFile = local.NewSet(
		"Переведённый файл",
		local.NewTrans(local.Eng, "Translated file"),
	)
	TextRecordingPermission = local.NewSet(
		"Нет доступа к микрофону",
		local.NewTrans(local.Eng, "Microphone access denied"),
	)
	TextRecordingStartFailed = local.NewSet(
		"Не удалось начать запись",
		local.NewTrans(local.Eng, "Could not start recording"),
	)
	TextRecordingStopFailed = local.NewSet(
		"Не удалось сохранить запись",
		local.NewTrans(local.Eng, "Could not save the recording"),
	)
	TextContextCleared = local.NewSet(
		"Контекст очищен из-за неактивности.",
		local.NewTrans(local.Eng, "Context cleared due to inactivity."),
	)
)
